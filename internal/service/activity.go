package service

import (
	"context"
	"time"

	"campus_parking/internal/domain"
	"campus_parking/internal/repository"

	"github.com/rs/zerolog/log"
	"gopkg.in/guregu/null.v4"
)

// SpotNotifier receives every committed spot status change. The websocket hub implements it.
type SpotNotifier interface {
	NotifySpotStatus(n domain.SpotStatusNotification)
}

type nopNotifier struct{}

func (nopNotifier) NotifySpotStatus(domain.SpotStatusNotification) {}

// ActivityRecorder writes the audit trail after commit. Failures are logged only.
type ActivityRecorder struct {
	repo    repository.ActivityLogRepository
	timeout time.Duration
}

func NewActivityRecorder(repo repository.ActivityLogRepository) *ActivityRecorder {
	return &ActivityRecorder{repo: repo, timeout: 3 * time.Second}
}

func (a *ActivityRecorder) Record(ctx context.Context, actor domain.Actor, userID int, action string, reservationID int64, details map[string]any) {
	if a == nil || a.repo == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	details["actor"] = actor.Label()

	// request context may already be cancelled once the response is written
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	entry := &domain.ActivityLog{
		UserID:        userID,
		Action:        action,
		ReservationID: null.NewInt(reservationID, reservationID > 0),
		Details:       details,
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.repo.Create(writeCtx, entry); err != nil {
		log.Warn().Err(err).Str("action", action).Int64("reservation_id", reservationID).Msg("activity log write failed")
	}
}

const (
	actionBookingCreated   = "booking.created"
	actionSessionStarted   = "session.started"
	actionSessionEnded     = "session.ended"
	actionBookingCancelled = "booking.cancelled"
	actionBookingExpired   = "booking.expired"
)
