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
)

// BookingService claims spots for users and serves the read side of spots and reservations.
type BookingService struct {
	store    repository.Store
	qr       *QRIssuer
	notifier SpotNotifier
	activity *ActivityRecorder
	now      func() time.Time
}

func NewBookingService(store repository.Store, qr *QRIssuer, notifier SpotNotifier, activity *ActivityRecorder) *BookingService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &BookingService{
		store:    store,
		qr:       qr,
		notifier: notifier,
		activity: activity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Book runs the precondition checks in order and then claims the spot under its row lock.
func (s *BookingService) Book(ctx context.Context, actor domain.Actor, dto domain.BookSpotDTO) (resp *domain.BookingResponseDTO, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(ErrorCodeOf(err))
		}
		metrics.Bookings.WithLabelValues(outcome).Inc()
	}()

	vehicle, err := s.store.Vehicles().FindByID(ctx, dto.VehicleID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError("Book.FindVehicle", err)
	}
	if vehicle == nil || vehicle.UserID != actor.UserID {
		return nil, newAppError(CodeVehicleNotFound, "vehicle not found among your registered vehicles", nil).
			with("vehicleId", dto.VehicleID)
	}

	if existing, err := s.store.Reservations().FindOpenByUser(ctx, actor.UserID); err == nil {
		return nil, conflictingBooking(existing)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError("Book.FindOpenByUser", err)
	}

	spot, err := s.store.Spots().FindByID(ctx, dto.SpotID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError("Book.FindSpot", err)
	}
	if spot == nil || spot.SectionID != dto.AreaID {
		return nil, newAppError(CodeSpotNotFound, fmt.Sprintf("spot %s does not exist in area %s", dto.SpotID, dto.AreaID), nil)
	}

	if !vehicle.Type.Fits(spot.Type) {
		return nil, newAppError(CodeVehicleTypeMismatch,
			fmt.Sprintf("a %s cannot park in a %s spot", vehicle.Type, spot.Type), nil).
			with("vehicleType", vehicle.Type).
			with("spotType", spot.Type)
	}

	credential, payload, err := s.qr.Issue(spot.ID)
	if err != nil {
		return nil, storeError("Book.IssueCredential", err)
	}

	var created *domain.Reservation
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Spots().ClaimWithLock(ctx, spot.ID, domain.SpotReserved, domain.SpotAvailable); err != nil {
			return translateClaim(err, spot.ID)
		}
		res, err := tx.Reservations().Create(ctx, &domain.Reservation{
			UserID:       actor.UserID,
			VehicleID:    vehicle.ID,
			SpotID:       spot.ID,
			SectionID:    spot.SectionID,
			CreatedAt:    s.now(),
			Status:       domain.ReservationReserved,
			QRCredential: credential,
		})
		switch {
		case errors.Is(err, repository.ErrOpenReservationExists):
			return newAppError(CodeConflictingActiveBooking, "you already have an open booking", err)
		case errors.Is(err, repository.ErrClaimLost):
			return newAppError(CodeSpotAlreadyBooked, "this spot was just booked by someone else", err)
		case err != nil:
			return storeError("Book.CreateReservation", err)
		}
		created = res
		return nil
	})
	if ErrorCodeOf(err) == CodeConflictingActiveBooking {
		// unique index bắt được booking song song, đọc lại để trả chi tiết
		if existing, findErr := s.store.Reservations().FindOpenByUser(ctx, actor.UserID); findErr == nil {
			return nil, conflictingBooking(existing)
		}
	}
	if err != nil {
		return nil, toAppError("Book", err)
	}

	log.Info().Int64("reservation_id", created.ID).Str("spot_id", spot.ID).Int("user_id", actor.UserID).Msg("spot booked")
	metrics.SessionTransitions.WithLabelValues(string(domain.ReservationReserved), "book").Inc()
	s.activity.Record(ctx, actor, actor.UserID, actionBookingCreated, created.ID, map[string]any{
		"spot_id": spot.ID, "area_id": spot.SectionID, "vehicle_id": vehicle.ID,
	})
	s.notifier.NotifySpotStatus(domain.SpotStatusNotification{
		SpotID: spot.ID, SectionID: spot.SectionID, Status: domain.SpotReserved,
		ReservationID: created.ID, ChangedAt: created.CreatedAt,
	})

	encoded, err := payload.Encode()
	if err != nil {
		return nil, storeError("Book.EncodePayload", err)
	}
	resp = &domain.BookingResponseDTO{
		ReservationID: created.ID,
		SpotID:        spot.ID,
		AreaID:        spot.SectionID,
		Status:        created.Status,
		QRPayload:     encoded,
		CreatedAt:     created.CreatedAt,
	}
	if uri, err := s.qr.DataURI(created); err == nil {
		resp.QRImage = uri
	} else {
		log.Warn().Err(err).Int64("reservation_id", created.ID).Msg("could not render qr image")
	}
	return resp, nil
}

// CurrentReservation returns the caller's reserved or active reservation.
func (s *BookingService) CurrentReservation(ctx context.Context, actor domain.Actor) (*domain.Reservation, error) {
	res, err := s.store.Reservations().FindOpenByUser(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newAppError(CodeReservationNotFound, "you have no open booking", nil)
		}
		return nil, storeError("CurrentReservation", err)
	}
	return res, nil
}

// QRImage renders the code of a reservation that can still be scanned.
func (s *BookingService) QRImage(ctx context.Context, actor domain.Actor, reservationID int64) ([]byte, error) {
	res, err := loadOwned(ctx, s.store, actor, reservationID, CodeReservationNotFound)
	if err != nil {
		return nil, err
	}
	if res.Status.Terminal() {
		s.qr.Forget(res.QRCredential)
		return nil, newAppError(CodeReservationNotFound, fmt.Sprintf("reservation %d is already %s", res.ID, res.Status), nil)
	}
	png, err := s.qr.PNG(res)
	if err != nil {
		return nil, storeError("QRImage", err)
	}
	return png, nil
}

func (s *BookingService) ListSpots(ctx context.Context, filter domain.SpotFilterDTO) ([]domain.Spot, error) {
	spots, err := s.store.Spots().Find(ctx, filter)
	if err != nil {
		return nil, storeError("ListSpots", err)
	}
	return spots, nil
}

func (s *BookingService) SectionCapacity(ctx context.Context, sectionID string) (*domain.SectionCapacity, error) {
	c, err := s.store.Spots().CapacityBySection(ctx, sectionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newAppError(CodeSpotNotFound, fmt.Sprintf("area %s has no spots", sectionID), nil)
		}
		return nil, storeError("SectionCapacity", err)
	}
	return c, nil
}

func conflictingBooking(existing *domain.Reservation) *AppError {
	return newAppError(CodeConflictingActiveBooking, "you already have an open booking", nil).
		with("reservationId", existing.ID).
		with("areaId", existing.SectionID).
		with("spotId", existing.SpotID).
		with("status", existing.Status)
}

// translateClaim maps the claim primitive's outcomes for the booking path.
func translateClaim(err error, spotID string) error {
	switch {
	case errors.Is(err, repository.ErrSpotUnavailable):
		return newAppError(CodeSpotUnavailable, fmt.Sprintf("spot %s is not available", spotID), err)
	case errors.Is(err, repository.ErrClaimLost):
		return newAppError(CodeSpotAlreadyBooked, fmt.Sprintf("spot %s was just booked by someone else", spotID), err)
	case errors.Is(err, repository.ErrNotFound):
		return newAppError(CodeSpotNotFound, fmt.Sprintf("spot %s does not exist", spotID), err)
	}
	return storeError("ClaimWithLock", err)
}

// toAppError makes sure nothing but an AppError leaves the service layer.
func toAppError(op string, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return storeError(op, err)
}

// loadOwned fetches a reservation the actor may act on: the owner or staff.
func loadOwned(ctx context.Context, store repository.Store, actor domain.Actor, id int64, missing ErrorCode) (*domain.Reservation, error) {
	res, err := store.Reservations().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newAppError(missing, fmt.Sprintf("reservation %d not found", id), nil)
		}
		return nil, storeError("FindReservation", err)
	}
	if res.UserID != actor.UserID && !actor.IsStaff() {
		return nil, newAppError(CodeForbidden, "this reservation belongs to another user", nil)
	}
	return res, nil
}
