package postgresql

import (
	"context"
	"fmt"
	"time"

	"campus_parking/internal/domain"
)

type pgPenaltyRepository struct {
	db querier
}

func (r *pgPenaltyRepository) Create(ctx context.Context, p *domain.Penalty) (*domain.Penalty, error) {
	query := `INSERT INTO penalty (user_id, penalty_hours, created_at) VALUES ($1, $2, $3) RETURNING id`
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := r.db.QueryRowContext(ctx, query, p.UserID, p.PenaltyHours, p.CreatedAt).Scan(&p.ID); err != nil {
		return nil, fmt.Errorf("PenaltyRepository.Create: %w", classify(err))
	}
	return p, nil
}

func (r *pgPenaltyRepository) FindByUser(ctx context.Context, userID int) ([]domain.Penalty, error) {
	query := `SELECT id, user_id, penalty_hours, created_at FROM penalty WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("PenaltyRepository.FindByUser: %w", classify(err))
	}
	defer rows.Close()

	var penalties []domain.Penalty
	for rows.Next() {
		var p domain.Penalty
		if err := rows.Scan(&p.ID, &p.UserID, &p.PenaltyHours, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("PenaltyRepository.FindByUser (scanning row): %w", err)
		}
		p.CreatedAt = p.CreatedAt.In(time.UTC)
		penalties = append(penalties, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("PenaltyRepository.FindByUser (rows error): %w", classify(err))
	}
	return penalties, nil
}
