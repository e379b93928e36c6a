package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus_parking/internal/domain"
	"campus_parking/internal/repository"

	"github.com/lib/pq"
)

type pgSpotRepository struct {
	db querier
}

const spotColumns = `id, section_id, type, status, updated_at`

func (r *pgSpotRepository) FindByID(ctx context.Context, id string) (*domain.Spot, error) {
	spot := &domain.Spot{}
	query := `SELECT ` + spotColumns + ` FROM parking_spot WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&spot.ID, &spot.SectionID, &spot.Type, &spot.Status, &spot.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SpotRepository.FindByID: %w", classify(err))
	}
	spot.UpdatedAt = spot.UpdatedAt.In(time.UTC)
	return spot, nil
}

func (r *pgSpotRepository) Find(ctx context.Context, filter domain.SpotFilterDTO) ([]domain.Spot, error) {
	var conditions []string
	var args []any
	argID := 1

	if filter.SectionID != nil && *filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", argID))
		args = append(args, *filter.SectionID)
		argID++
	}
	if filter.Type != nil && *filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argID))
		args = append(args, strings.ToLower(*filter.Type))
		argID++
	}
	if filter.Status != nil && *filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, strings.ToLower(*filter.Status))
	}

	query := `SELECT ` + spotColumns + ` FROM parking_spot`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY section_id, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SpotRepository.Find: %w", classify(err))
	}
	defer rows.Close()

	var spots []domain.Spot
	for rows.Next() {
		var spot domain.Spot
		if err := rows.Scan(&spot.ID, &spot.SectionID, &spot.Type, &spot.Status, &spot.UpdatedAt); err != nil {
			return nil, fmt.Errorf("SpotRepository.Find (scanning row): %w", err)
		}
		spot.UpdatedAt = spot.UpdatedAt.In(time.UTC)
		spots = append(spots, spot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SpotRepository.Find (rows error): %w", classify(err))
	}
	return spots, nil
}

func (r *pgSpotRepository) CapacityBySection(ctx context.Context, sectionID string) (*domain.SectionCapacity, error) {
	query := `SELECT COUNT(*),
	                 COUNT(*) FILTER (WHERE status = 'available'),
	                 COUNT(*) FILTER (WHERE status = 'reserved'),
	                 COUNT(*) FILTER (WHERE status = 'occupied')
	           FROM parking_spot WHERE section_id = $1`
	c := &domain.SectionCapacity{SectionID: sectionID}
	if err := r.db.QueryRowContext(ctx, query, sectionID).Scan(&c.Total, &c.Available, &c.Reserved, &c.Occupied); err != nil {
		return nil, fmt.Errorf("SpotRepository.CapacityBySection: %w", classify(err))
	}
	if c.Total == 0 {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (r *pgSpotRepository) ClaimWithLock(ctx context.Context, spotID string, to domain.SpotStatus, from ...domain.SpotStatus) (*domain.Spot, error) {
	if len(from) == 0 {
		return nil, errors.New("SpotRepository.ClaimWithLock: at least one source status is required")
	}

	spot := &domain.Spot{}
	lockQuery := `SELECT ` + spotColumns + ` FROM parking_spot WHERE id = $1 FOR UPDATE`
	err := r.db.QueryRowContext(ctx, lockQuery, spotID).Scan(&spot.ID, &spot.SectionID, &spot.Type, &spot.Status, &spot.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SpotRepository.ClaimWithLock (lock): %w", classify(err))
	}
	if !containsStatus(from, spot.Status) {
		return nil, fmt.Errorf("%w: spot %s is %s", repository.ErrSpotUnavailable, spotID, spot.Status)
	}

	// Cùng điều kiện với bước kiểm tra ở trên, không bao giờ cập nhật vô điều kiện
	updateQuery := `UPDATE parking_spot SET status = $1, updated_at = CURRENT_TIMESTAMP
	                WHERE id = $2 AND status = ANY($3)
	                RETURNING updated_at`
	err = r.db.QueryRowContext(ctx, updateQuery, to, spotID, pq.Array(statusStrings(from))).Scan(&spot.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: spot %s", repository.ErrClaimLost, spotID)
		}
		return nil, fmt.Errorf("SpotRepository.ClaimWithLock (update): %w", classify(err))
	}
	spot.Status = to
	spot.UpdatedAt = spot.UpdatedAt.In(time.UTC)
	return spot, nil
}

func containsStatus(set []domain.SpotStatus, s domain.SpotStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func statusStrings(set []domain.SpotStatus) []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}
