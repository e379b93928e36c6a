package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus_parking/internal/domain"
	"campus_parking/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// ErrInvalidScanEvent marks queue messages that can never be processed.
var ErrInvalidScanEvent = errors.New("invalid scanner event")

// BarrierPublisher opens a gate barrier after a successful scan.
type BarrierPublisher interface {
	OpenBarrier(ctx context.Context, gateThingName string, reservationID int64) error
}

// IoTPublishAPI is the subset of *iotdataplane.Client the barrier publisher needs.
type IoTPublishAPI interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

type IoTBarrierPublisher struct {
	client  IoTPublishAPI
	breaker *gobreaker.CircuitBreaker[*iotdataplane.PublishOutput]
}

func NewIoTBarrierPublisher(client IoTPublishAPI) *IoTBarrierPublisher {
	settings := gobreaker.Settings{
		Name:        "iot-barrier-publish",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &IoTBarrierPublisher{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[*iotdataplane.PublishOutput](settings),
	}
}

func (p *IoTBarrierPublisher) OpenBarrier(ctx context.Context, gateThingName string, reservationID int64) error {
	topic := fmt.Sprintf("gates/%s/barrier/command", gateThingName)
	payload := domain.BarrierControlCommandPayload{
		Command:       "open",
		RequestID:     uuid.NewString(),
		ReservationID: reservationID,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal barrier command: %w", err)
	}

	_, err = p.breaker.Execute(func() (*iotdataplane.PublishOutput, error) {
		return p.client.Publish(ctx, &iotdataplane.PublishInput{
			Topic:   aws.String(topic),
			Qos:     1,
			Payload: payloadBytes,
		})
	})
	if err != nil {
		return fmt.Errorf("publish barrier command to %s: %w", topic, err)
	}
	log.Info().Str("topic", topic).Str("request_id", payload.RequestID).Int64("reservation_id", reservationID).Msg("barrier open command sent")
	return nil
}

// GateService turns gate scanner events into session transitions.
type GateService struct {
	sessions  *SessionService
	publisher BarrierPublisher
}

func NewGateService(sessions *SessionService, publisher BarrierPublisher) *GateService {
	return &GateService{sessions: sessions, publisher: publisher}
}

// HandleScan processes one queue message body.
func (g *GateService) HandleScan(ctx context.Context, body string) error {
	var ev domain.ScannerEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		metrics.GateScans.WithLabelValues("unknown", "malformed").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidScanEvent, err)
	}
	if strings.TrimSpace(ev.ScannerID) == "" || strings.TrimSpace(ev.Payload) == "" {
		metrics.GateScans.WithLabelValues(string(ev.ScanType), "malformed").Inc()
		return fmt.Errorf("%w: scanner_id and payload are required", ErrInvalidScanEvent)
	}

	actor := domain.Actor{Role: "scanner", Username: ev.ScannerID}
	var (
		reservationID int64
		err           error
	)
	switch ev.ScanType {
	case domain.ScannerEntry:
		var started *domain.SessionStartedDTO
		if started, err = g.sessions.StartSession(ctx, actor, ev.Payload); err == nil {
			reservationID = started.ReservationID
		}
	case domain.ScannerExit:
		var ended *domain.SessionEndedDTO
		if ended, err = g.sessions.EndSessionByQR(ctx, actor, ev.Payload); err == nil {
			reservationID = ended.ReservationID
		}
	default:
		metrics.GateScans.WithLabelValues(string(ev.ScanType), "malformed").Inc()
		return fmt.Errorf("%w: unknown scan_type %q", ErrInvalidScanEvent, ev.ScanType)
	}
	if err != nil {
		metrics.GateScans.WithLabelValues(string(ev.ScanType), string(ErrorCodeOf(err))).Inc()
		return err
	}
	metrics.GateScans.WithLabelValues(string(ev.ScanType), "ok").Inc()

	if g.publisher != nil && ev.GateThingName != "" {
		// phiên đã commit, lỗi mở barrier chỉ ghi log
		if err := g.publisher.OpenBarrier(ctx, ev.GateThingName, reservationID); err != nil {
			log.Error().Err(err).Str("gate", ev.GateThingName).Int64("reservation_id", reservationID).Msg("could not open barrier")
		}
	}
	return nil
}

// IsRetryable reports whether a failed message should stay on the queue.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidScanEvent) {
		return false
	}
	code := ErrorCodeOf(err)
	return code == "" || code == CodeStoreUnavailable
}
