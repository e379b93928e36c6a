package repository

import (
	"context"
	"errors"
	"time"

	"campus_parking/internal/domain"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicateEntry = errors.New("record already exists")

// BalanceEpsilon: subscription balances at or below this many hours count as empty.
const BalanceEpsilon = 1e-9

// Claim-with-lock outcomes.
var (
	// ErrSpotUnavailable: the locked row was not in any of the expected source states.
	ErrSpotUnavailable = errors.New("spot is not in the expected state")
	// ErrClaimLost: the conditional update matched zero rows, a concurrent claim won.
	ErrClaimLost = errors.New("spot claim lost to a concurrent request")
	// ErrStaleTransition: the reservation was no longer in the expected state.
	ErrStaleTransition = errors.New("reservation is no longer in the expected state")
	// ErrOpenReservationExists: a unique index on open reservations rejected the insert.
	ErrOpenReservationExists = errors.New("an open reservation already exists")
	// ErrStoreUnavailable wraps connection-level failures of the ledger store.
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
}

type VehicleRepository interface {
	FindByID(ctx context.Context, id int) (*domain.Vehicle, error)
}

type SpotRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Spot, error)
	Find(ctx context.Context, filter domain.SpotFilterDTO) ([]domain.Spot, error)
	CapacityBySection(ctx context.Context, sectionID string) (*domain.SectionCapacity, error)
	// ClaimWithLock locks the spot row, checks its status is one of from and moves it to `to`
	// with an update conditional on the same predicate. Must run inside a transaction.
	ClaimWithLock(ctx context.Context, spotID string, to domain.SpotStatus, from ...domain.SpotStatus) (*domain.Spot, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, r *domain.Reservation) (*domain.Reservation, error)
	FindByID(ctx context.Context, id int64) (*domain.Reservation, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.Reservation, error)
	FindByCredential(ctx context.Context, credential string) (*domain.Reservation, error)
	FindOpenByUser(ctx context.Context, userID int) (*domain.Reservation, error)
	// Transition moves a reservation from -> to, stamping start_time (active) or end_time
	// (completed, cancelled) with at. Zero affected rows yields ErrStaleTransition.
	Transition(ctx context.Context, id int64, from, to domain.ReservationStatus, at time.Time) error
	FindExpired(ctx context.Context, olderThan time.Time, limit int) ([]domain.Reservation, error)
}

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	FindByUser(ctx context.Context, userID int) ([]domain.Subscription, error)
	// FindOldestActiveForUpdate returns the oldest-purchased active subscription with more than
	// BalanceEpsilon hours left.
	FindOldestActiveForUpdate(ctx context.Context, userID int) (*domain.Subscription, error)
	// Deduct subtracts hours and returns the balance re-read from the row. A balance left at or
	// below BalanceEpsilon is stored as 0 and the subscription becomes exhausted.
	Deduct(ctx context.Context, id int64, hours float64) (float64, error)
}

type PenaltyRepository interface {
	Create(ctx context.Context, p *domain.Penalty) (*domain.Penalty, error)
	FindByUser(ctx context.Context, userID int) ([]domain.Penalty, error)
}

type ScanTrackingRepository interface {
	Create(ctx context.Context, scan *domain.ScanRecord) error
}

type ActivityLogRepository interface {
	Create(ctx context.Context, entry *domain.ActivityLog) error
}

// Tx exposes repositories bound to one open transaction.
type Tx interface {
	Spots() SpotRepository
	Reservations() ReservationRepository
	Subscriptions() SubscriptionRepository
	Penalties() PenaltyRepository
	Scans() ScanTrackingRepository
}

// Store is the ledger store handle injected into every component.
type Store interface {
	Tx
	Users() UserRepository
	Vehicles() VehicleRepository
	ActivityLog() ActivityLogRepository
	// WithinTx runs fn in one transaction; any error (or panic) rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
