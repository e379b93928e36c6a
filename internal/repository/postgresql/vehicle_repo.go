package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"campus_parking/internal/domain"
	"campus_parking/internal/repository"
)

type pgVehicleRepository struct {
	db querier
}

func NewPgVehicleRepository(db *sql.DB) repository.VehicleRepository {
	return &pgVehicleRepository{db: db}
}

func (r *pgVehicleRepository) FindByID(ctx context.Context, id int) (*domain.Vehicle, error) {
	v := &domain.Vehicle{}
	var plate sql.NullString
	query := `SELECT id, user_id, type, license_plate FROM vehicles WHERE id = $1`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.UserID, &v.Type, &plate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("VehicleRepository.FindByID: %w", classify(err))
	}
	v.LicensePlate = plate.String
	return v, nil
}
