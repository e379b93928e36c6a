package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campus_parking/internal/domain"
	"campus_parking/internal/metrics"
	"campus_parking/internal/repository"

	"github.com/rs/zerolog/log"
	"gopkg.in/guregu/null.v4"
)

// SessionService drives reservations through reserved -> active -> completed | cancelled.
type SessionService struct {
	store    repository.Store
	qr       *QRIssuer
	billing  *BillingEngine
	notifier SpotNotifier
	activity *ActivityRecorder
	now      func() time.Time
}

func NewSessionService(store repository.Store, qr *QRIssuer, billing *BillingEngine, notifier SpotNotifier, activity *ActivityRecorder) *SessionService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &SessionService{
		store:    store,
		qr:       qr,
		billing:  billing,
		notifier: notifier,
		activity: activity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartSession activates the reservation bound to a scanned payload and marks its spot occupied.
func (s *SessionService) StartSession(ctx context.Context, actor domain.Actor, payload string) (*domain.SessionStartedDTO, error) {
	res, err := s.qr.Resolve(ctx, s.store.Reservations(), payload)
	if err != nil {
		return nil, err
	}
	if res.Status != domain.ReservationReserved {
		return nil, notReserved(res)
	}

	startedAt := s.now()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Reservations().Transition(ctx, res.ID, domain.ReservationReserved, domain.ReservationActive, startedAt); err != nil {
			if errors.Is(err, repository.ErrStaleTransition) {
				return notReserved(res)
			}
			return storeError("StartSession.Transition", err)
		}
		if _, err := tx.Spots().ClaimWithLock(ctx, res.SpotID, domain.SpotOccupied, domain.SpotReserved); err != nil {
			return spotConflict(err, res.SpotID)
		}
		return tx.Scans().Create(ctx, &domain.ScanRecord{
			ReservationID: res.ID,
			ActorID:       actor.Label(),
			ScanType:      domain.ScanStart,
			ScanTimestamp: startedAt,
			StatusAtScan:  domain.ReservationReserved,
			SpotID:        res.SpotID,
			VehicleID:     null.IntFrom(int64(res.VehicleID)),
		})
	})
	if err != nil {
		return nil, toAppError("StartSession", err)
	}

	log.Info().Int64("reservation_id", res.ID).Str("spot_id", res.SpotID).Str("actor", actor.Label()).Msg("parking session started")
	metrics.SessionTransitions.WithLabelValues(string(domain.ReservationActive), triggerOf(actor)).Inc()
	s.activity.Record(ctx, actor, res.UserID, actionSessionStarted, res.ID, map[string]any{"spot_id": res.SpotID})
	s.notifier.NotifySpotStatus(domain.SpotStatusNotification{
		SpotID: res.SpotID, SectionID: res.SectionID, Status: domain.SpotOccupied,
		ReservationID: res.ID, ChangedAt: startedAt,
	})

	return &domain.SessionStartedDTO{
		ReservationID: res.ID,
		SpotID:        res.SpotID,
		VehicleID:     res.VehicleID,
		Status:        domain.ReservationActive,
		StartTime:     startedAt,
	}, nil
}

// EndSessionByQR ends the session bound to a scanned payload.
func (s *SessionService) EndSessionByQR(ctx context.Context, actor domain.Actor, payload string) (*domain.SessionEndedDTO, error) {
	res, err := s.qr.Resolve(ctx, s.store.Reservations(), payload)
	if err != nil {
		return nil, err
	}
	return s.endSession(ctx, actor, res.ID)
}

// EndSessionByID is the direct path for the owner or staff, no QR involved.
func (s *SessionService) EndSessionByID(ctx context.Context, actor domain.Actor, reservationID int64) (*domain.SessionEndedDTO, error) {
	if _, err := loadOwned(ctx, s.store, actor, reservationID, CodeActiveSessionNotFound); err != nil {
		return nil, err
	}
	return s.endSession(ctx, actor, reservationID)
}

func (s *SessionService) endSession(ctx context.Context, actor domain.Actor, reservationID int64) (*domain.SessionEndedDTO, error) {
	var (
		res    *domain.Reservation
		bill   *BillingResult
		endsAt time.Time
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		res, err = tx.Reservations().FindByIDForUpdate(ctx, reservationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return noActiveSession(reservationID)
			}
			return storeError("EndSession.Find", err)
		}
		if res.Status != domain.ReservationActive || !res.StartTime.Valid {
			return noActiveSession(reservationID).with("status", res.Status)
		}

		endsAt = s.now()
		if endsAt.Before(res.StartTime.Time) {
			endsAt = res.StartTime.Time
		}

		bill, err = s.billing.Bill(ctx, tx, res.UserID, res.StartTime.Time, endsAt)
		if err != nil {
			return err
		}
		if err := tx.Reservations().Transition(ctx, res.ID, domain.ReservationActive, domain.ReservationCompleted, endsAt); err != nil {
			if errors.Is(err, repository.ErrStaleTransition) {
				return noActiveSession(reservationID)
			}
			return storeError("EndSession.Transition", err)
		}
		if _, err := tx.Spots().ClaimWithLock(ctx, res.SpotID, domain.SpotAvailable, domain.SpotOccupied); err != nil {
			return spotConflict(err, res.SpotID)
		}
		return tx.Scans().Create(ctx, &domain.ScanRecord{
			ReservationID: res.ID,
			ActorID:       actor.Label(),
			ScanType:      domain.ScanEnd,
			ScanTimestamp: endsAt,
			StatusAtScan:  domain.ReservationActive,
			SpotID:        res.SpotID,
			VehicleID:     null.IntFrom(int64(res.VehicleID)),
		})
	})
	if err != nil {
		if ErrorCodeOf(err) == CodeNoActiveSubscription {
			log.Warn().Int64("reservation_id", reservationID).Msg("session end rejected, user has no active subscription")
		}
		return nil, toAppError("EndSession", err)
	}

	s.qr.Forget(res.QRCredential)
	bill.observe()
	metrics.SessionTransitions.WithLabelValues(string(domain.ReservationCompleted), triggerOf(actor)).Inc()

	out := &domain.SessionEndedDTO{
		ReservationID:    res.ID,
		SpotID:           res.SpotID,
		Status:           domain.ReservationCompleted,
		StartTime:        res.StartTime.Time,
		EndTime:          endsAt,
		DurationMinutes:  bill.Charge.ElapsedMinutes,
		ChargeHours:      bill.Charge.Hours,
		HoursDeducted:    bill.HoursDeducted,
		PenaltyHours:     bill.PenaltyHours,
		SubscriptionID:   bill.SubscriptionID,
		RemainingBalance: bill.RemainingBalance,
	}
	if bill.PenaltyHours > 0 {
		out.Message = "Session ended. You " + OverageMessage(bill.PenaltyHours) + "; a penalty has been recorded."
		if bill.SubscriptionID == nil {
			log.Warn().Int64("reservation_id", res.ID).Int("user_id", res.UserID).Float64("penalty_hours", bill.PenaltyHours).
				Msg("session billed without subscription, whole charge recorded as penalty")
		}
	} else {
		out.Message = "Session ended. Your subscription covered the full duration."
	}

	log.Info().Int64("reservation_id", res.ID).Int64("minutes", bill.Charge.ElapsedMinutes).
		Float64("deducted", bill.HoursDeducted).Float64("penalty", bill.PenaltyHours).Msg("parking session ended")
	s.activity.Record(ctx, actor, res.UserID, actionSessionEnded, res.ID, map[string]any{
		"spot_id": res.SpotID, "charge_hours": bill.Charge.Hours, "penalty_hours": bill.PenaltyHours,
	})
	s.notifier.NotifySpotStatus(domain.SpotStatusNotification{
		SpotID: res.SpotID, SectionID: res.SectionID, Status: domain.SpotAvailable,
		ReservationID: res.ID, ChangedAt: endsAt,
	})
	return out, nil
}

// Cancel releases a reservation that was never started.
func (s *SessionService) Cancel(ctx context.Context, actor domain.Actor, reservationID int64) (*domain.SessionStatusDTO, error) {
	res, err := loadOwned(ctx, s.store, actor, reservationID, CodeReservationNotFound)
	if err != nil {
		return nil, err
	}
	if res.Status != domain.ReservationReserved {
		return nil, notReserved(res)
	}
	if err := s.cancel(ctx, actor, res, actionBookingCancelled); err != nil {
		return nil, err
	}
	res.Status = domain.ReservationCancelled
	return s.project(res, s.now()), nil
}

func (s *SessionService) cancel(ctx context.Context, actor domain.Actor, res *domain.Reservation, action string) error {
	at := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Reservations().Transition(ctx, res.ID, domain.ReservationReserved, domain.ReservationCancelled, at); err != nil {
			if errors.Is(err, repository.ErrStaleTransition) {
				return notReserved(res)
			}
			return storeError("Cancel.Transition", err)
		}
		if _, err := tx.Spots().ClaimWithLock(ctx, res.SpotID, domain.SpotAvailable, domain.SpotReserved); err != nil {
			return spotConflict(err, res.SpotID)
		}
		return nil
	})
	if err != nil {
		return toAppError("Cancel", err)
	}

	s.qr.Forget(res.QRCredential)
	metrics.SessionTransitions.WithLabelValues(string(domain.ReservationCancelled), triggerOf(actor)).Inc()
	log.Info().Int64("reservation_id", res.ID).Str("spot_id", res.SpotID).Str("actor", actor.Label()).Msg("booking cancelled")
	s.activity.Record(ctx, actor, res.UserID, action, res.ID, map[string]any{"spot_id": res.SpotID})
	s.notifier.NotifySpotStatus(domain.SpotStatusNotification{
		SpotID: res.SpotID, SectionID: res.SectionID, Status: domain.SpotAvailable,
		ReservationID: res.ID, ChangedAt: at,
	})
	return nil
}

// ExpireStale cancels reserved bookings created before olderThan. Races with a
// concurrent start or cancel are skipped, not reported.
func (s *SessionService) ExpireStale(ctx context.Context, olderThan time.Time, batch int) (int, error) {
	stale, err := s.store.Reservations().FindExpired(ctx, olderThan, batch)
	if err != nil {
		return 0, storeError("ExpireStale.Find", err)
	}
	expired := 0
	for i := range stale {
		res := &stale[i]
		if err := s.cancel(ctx, domain.SystemActor, res, actionBookingExpired); err != nil {
			switch ErrorCodeOf(err) {
			case CodeReservationNotFound, CodeSpotStateConflict:
				log.Debug().Int64("reservation_id", res.ID).Msg("stale reservation changed state before expiry, skipping")
				continue
			}
			return expired, err
		}
		metrics.ExpiredReservations.Inc()
		expired++
	}
	return expired, nil
}

// Status is the read-only projection for the owner or staff.
func (s *SessionService) Status(ctx context.Context, actor domain.Actor, reservationID int64) (*domain.SessionStatusDTO, error) {
	res, err := loadOwned(ctx, s.store, actor, reservationID, CodeReservationNotFound)
	if err != nil {
		return nil, err
	}
	return s.project(res, s.now()), nil
}

// StatusByQR projects the reservation bound to a payload; holding the code is enough.
func (s *SessionService) StatusByQR(ctx context.Context, payload string) (*domain.SessionStatusDTO, error) {
	res, err := s.qr.Resolve(ctx, s.store.Reservations(), payload)
	if err != nil {
		return nil, err
	}
	return s.project(res, s.now()), nil
}

func (s *SessionService) project(res *domain.Reservation, now time.Time) *domain.SessionStatusDTO {
	dto := &domain.SessionStatusDTO{
		ReservationID: res.ID,
		SpotID:        res.SpotID,
		AreaID:        res.SectionID,
		Status:        res.Status,
		CreatedAt:     res.CreatedAt,
		StartTime:     res.StartTime,
		EndTime:       res.EndTime,
	}
	if !res.StartTime.Valid {
		return dto
	}
	end := now
	if res.EndTime.Valid {
		end = res.EndTime.Time
	}
	if charge, err := ComputeCharge(res.StartTime.Time, end); err == nil {
		dto.ElapsedMinutes = charge.ElapsedMinutes
		dto.ChargeHoursNow = charge.Hours
	}
	return dto
}

func notReserved(res *domain.Reservation) *AppError {
	return newAppError(CodeReservationNotFound,
		fmt.Sprintf("no reserved booking found for reservation %d", res.ID), nil).
		with("status", res.Status)
}

func noActiveSession(id int64) *AppError {
	return newAppError(CodeActiveSessionNotFound, fmt.Sprintf("reservation %d has no active session", id), nil)
}

// spotConflict: the reservation allowed the move but the spot row disagreed.
func spotConflict(err error, spotID string) error {
	if errors.Is(err, repository.ErrSpotUnavailable) || errors.Is(err, repository.ErrClaimLost) || errors.Is(err, repository.ErrNotFound) {
		return newAppError(CodeSpotStateConflict, fmt.Sprintf("spot %s is not in the expected state", spotID), err)
	}
	return storeError("ClaimWithLock", err)
}

func triggerOf(actor domain.Actor) string {
	if actor.Role == "" {
		return "unknown"
	}
	return actor.Role
}
