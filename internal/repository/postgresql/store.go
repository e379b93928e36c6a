package postgresql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"campus_parking/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// querier is satisfied by both *sql.DB and *sql.Tx so every repository
// can run either standalone or inside WithinTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type pgStore struct {
	db *sql.DB
	pgTx
}

// pgTx groups the repositories that take part in a booking or session transaction.
type pgTx struct {
	q querier
}

func (t pgTx) Spots() repository.SpotRepository { return &pgSpotRepository{db: t.q} }
func (t pgTx) Reservations() repository.ReservationRepository { return &pgReservationRepository{db: t.q} }
func (t pgTx) Subscriptions() repository.SubscriptionRepository { return &pgSubscriptionRepository{db: t.q} }
func (t pgTx) Penalties() repository.PenaltyRepository { return &pgPenaltyRepository{db: t.q} }
func (t pgTx) Scans() repository.ScanTrackingRepository { return &pgScanTrackingRepository{db: t.q} }

func NewStore(db *sql.DB) repository.Store {
	return &pgStore{db: db, pgTx: pgTx{q: db}}
}

func (s *pgStore) Users() repository.UserRepository {
	return NewPgUserRepository(s.db)
}

func (s *pgStore) Vehicles() repository.VehicleRepository {
	return NewPgVehicleRepository(s.db)
}

func (s *pgStore) ActivityLog() repository.ActivityLogRepository {
	return NewPgActivityLogRepository(s.db)
}

func (s *pgStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("Store.WithinTx (begin): %w", classify(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Error().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	if err = fn(ctx, pgTx{q: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("Store.WithinTx (commit): %w", classify(err))
	}
	return nil
}

const (
	pgUniqueViolation    = "23505"
	pgLockNotAvailable   = "55P03"
	pgSerialization      = "40001"
	pgDeadlockDetected   = "40P01"
	pgTooManyConnections = "53300"
	pgAdminShutdown      = "57P01"
	pgCannotConnectNow   = "57P03"
)

// classify maps driver errors onto repository sentinels. Anything that is not
// recognised is returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return fmt.Errorf("%w (%s): %v", repository.ErrDuplicateEntry, pgErr.ConstraintName, err)
		case pgErr.Code == pgLockNotAvailable, pgErr.Code == pgSerialization, pgErr.Code == pgDeadlockDetected,
			pgErr.Code == pgTooManyConnections, pgErr.Code == pgAdminShutdown, pgErr.Code == pgCannotConnectNow,
			len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}
	return err
}

// uniqueConstraint returns the violated constraint name, or "" when err is not a unique violation.
func uniqueConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}
