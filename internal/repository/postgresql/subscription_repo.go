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

type pgSubscriptionRepository struct {
	db querier
}

const subscriptionColumns = `id, user_id, hours_remaining, hours_used, status, purchase_date`

func (r *pgSubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	query := `INSERT INTO subscriptions (user_id, hours_remaining, hours_used, status, purchase_date)
	          VALUES ($1, $2, 0, $3, CURRENT_TIMESTAMP)
	          RETURNING id, purchase_date`
	if sub.Status == "" {
		sub.Status = domain.SubscriptionActive
	}
	if err := r.db.QueryRowContext(ctx, query, sub.UserID, sub.HoursRemaining, sub.Status).Scan(&sub.ID, &sub.PurchaseDate); err != nil {
		return nil, fmt.Errorf("SubscriptionRepository.Create: %w", classify(err))
	}
	sub.PurchaseDate = sub.PurchaseDate.In(time.UTC)
	return sub, nil
}

func (r *pgSubscriptionRepository) FindByUser(ctx context.Context, userID int) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY purchase_date, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("SubscriptionRepository.FindByUser: %w", classify(err))
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.HoursRemaining, &sub.HoursUsed, &sub.Status, &sub.PurchaseDate); err != nil {
			return nil, fmt.Errorf("SubscriptionRepository.FindByUser (scanning row): %w", err)
		}
		sub.PurchaseDate = sub.PurchaseDate.In(time.UTC)
		subs = append(subs, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SubscriptionRepository.FindByUser (rows error): %w", classify(err))
	}
	return subs, nil
}

func (r *pgSubscriptionRepository) FindOldestActiveForUpdate(ctx context.Context, userID int) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
	          WHERE user_id = $1 AND status = 'active' AND hours_remaining > $2
	          ORDER BY purchase_date ASC, id ASC
	          LIMIT 1 FOR UPDATE`
	sub := &domain.Subscription{}
	err := r.db.QueryRowContext(ctx, query, userID, repository.BalanceEpsilon).Scan(&sub.ID, &sub.UserID, &sub.HoursRemaining, &sub.HoursUsed, &sub.Status, &sub.PurchaseDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SubscriptionRepository.FindOldestActiveForUpdate: %w", classify(err))
	}
	sub.PurchaseDate = sub.PurchaseDate.In(time.UTC)
	return sub, nil
}

func (r *pgSubscriptionRepository) Deduct(ctx context.Context, id int64, hours float64) (float64, error) {
	// Mọi biểu thức SET đều đọc giá trị cũ của hàng; số dư còn lại <= $3 là nhiễu dấu phẩy động
	query := `UPDATE subscriptions
	          SET hours_remaining = CASE WHEN hours_remaining - $1 <= $3 THEN 0 ELSE hours_remaining - $1 END,
	              hours_used = hours_used + LEAST($1, hours_remaining),
	              status = CASE WHEN hours_remaining - $1 <= $3 THEN 'exhausted' ELSE status END
	          WHERE id = $2
	          RETURNING hours_remaining`
	var remaining float64
	if err := r.db.QueryRowContext(ctx, query, hours, id, repository.BalanceEpsilon).Scan(&remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("SubscriptionRepository.Deduct: %w", classify(err))
	}
	return remaining, nil
}
