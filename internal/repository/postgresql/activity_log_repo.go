package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"campus_parking/internal/domain"
	"campus_parking/internal/repository"
)

type pgActivityLogRepository struct {
	db querier
}

func NewPgActivityLogRepository(db *sql.DB) repository.ActivityLogRepository {
	return &pgActivityLogRepository{db: db}
}

func (r *pgActivityLogRepository) Create(ctx context.Context, entry *domain.ActivityLog) error {
	query := `INSERT INTO activity_log (user_id, action, reservation_id, details, created_at)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`

	var details []byte
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("ActivityLogRepository.Create (marshal details): %w", err)
		}
		details = b
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err := r.db.QueryRowContext(ctx, query,
		entry.UserID, entry.Action, entry.ReservationID, details, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("ActivityLogRepository.Create: %w", classify(err))
	}
	return nil
}
