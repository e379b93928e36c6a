package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campus_parking/internal/domain"
	"campus_parking/internal/repository"
)

type pgReservationRepository struct {
	db querier
}

const reservationSelect = `SELECT r.id, r.user_id, r.vehicle_id, r.spot_id, s.section_id, r.time_stamp,
	       r.start_time, r.end_time, r.status, r.qr_credential
	FROM reservations r
	JOIN parking_spot s ON s.id = r.spot_id`

func scanReservation(row interface{ Scan(dest ...any) error }) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	err := row.Scan(&res.ID, &res.UserID, &res.VehicleID, &res.SpotID, &res.SectionID, &res.CreatedAt,
		&res.StartTime, &res.EndTime, &res.Status, &res.QRCredential)
	if err != nil {
		return nil, err
	}
	res.CreatedAt = res.CreatedAt.In(time.UTC)
	if res.StartTime.Valid {
		res.StartTime.Time = res.StartTime.Time.In(time.UTC)
	}
	if res.EndTime.Valid {
		res.EndTime.Time = res.EndTime.Time.In(time.UTC)
	}
	return res, nil
}

func (r *pgReservationRepository) Create(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	query := `INSERT INTO reservations (user_id, vehicle_id, spot_id, time_stamp, status, qr_credential)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id`
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, query,
		res.UserID, res.VehicleID, res.SpotID, res.CreatedAt, res.Status, res.QRCredential,
	).Scan(&res.ID)
	if err != nil {
		switch uniqueConstraint(err) {
		case "reservations_one_open_per_user":
			return nil, fmt.Errorf("%w: user %d", repository.ErrOpenReservationExists, res.UserID)
		case "reservations_one_open_per_spot":
			return nil, fmt.Errorf("%w: spot %s already has an open reservation", repository.ErrClaimLost, res.SpotID)
		case "reservations_qr_credential_key":
			return nil, fmt.Errorf("%w: qr credential collision", repository.ErrDuplicateEntry)
		}
		return nil, fmt.Errorf("ReservationRepository.Create: %w", classify(err))
	}
	return res, nil
}

func (r *pgReservationRepository) FindByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, reservationSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ReservationRepository.FindByID: %w", classify(err))
	}
	return res, nil
}

func (r *pgReservationRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, reservationSelect+` WHERE r.id = $1 FOR UPDATE OF r`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ReservationRepository.FindByIDForUpdate: %w", classify(err))
	}
	return res, nil
}

func (r *pgReservationRepository) FindByCredential(ctx context.Context, credential string) (*domain.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, reservationSelect+` WHERE r.qr_credential = $1`, credential))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ReservationRepository.FindByCredential: %w", classify(err))
	}
	return res, nil
}

func (r *pgReservationRepository) FindOpenByUser(ctx context.Context, userID int) (*domain.Reservation, error) {
	query := reservationSelect + ` WHERE r.user_id = $1 AND r.status IN ('reserved', 'active')
	ORDER BY r.time_stamp DESC LIMIT 1`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ReservationRepository.FindOpenByUser: %w", classify(err))
	}
	return res, nil
}

func (r *pgReservationRepository) Transition(ctx context.Context, id int64, from, to domain.ReservationStatus, at time.Time) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("ReservationRepository.Transition: %s -> %s is not allowed", from, to)
	}
	column := "end_time"
	if to == domain.ReservationActive {
		column = "start_time"
	}
	query := fmt.Sprintf(`UPDATE reservations SET status = $1, %s = $2 WHERE id = $3 AND status = $4`, column)
	result, err := r.db.ExecContext(ctx, query, to, at.UTC(), id, from)
	if err != nil {
		return fmt.Errorf("ReservationRepository.Transition: %w", classify(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ReservationRepository.Transition (getting rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: reservation %d is not %s", repository.ErrStaleTransition, id, from)
	}
	return nil
}

func (r *pgReservationRepository) FindExpired(ctx context.Context, olderThan time.Time, limit int) ([]domain.Reservation, error) {
	query := reservationSelect + ` WHERE r.status = 'reserved' AND r.time_stamp < $1
	ORDER BY r.time_stamp LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("ReservationRepository.FindExpired: %w", classify(err))
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("ReservationRepository.FindExpired (scanning row): %w", err)
		}
		out = append(out, *res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ReservationRepository.FindExpired (rows error): %w", classify(err))
	}
	return out, nil
}
