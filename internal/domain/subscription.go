package domain

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExhausted SubscriptionStatus = "exhausted"
)

type Subscription struct {
	ID             int64              `json:"id"`
	UserID         int                `json:"user_id"`
	HoursRemaining float64            `json:"hours_remaining"`
	HoursUsed      float64            `json:"hours_used"`
	Status         SubscriptionStatus `json:"status"`
	PurchaseDate   time.Time          `json:"purchase_date"`
}

// CreateSubscriptionDTO records a purchase that was already settled elsewhere.
type CreateSubscriptionDTO struct {
	UserID int     `json:"userId" binding:"required,min=1"`
	Hours  float64 `json:"hours" binding:"required,gt=0"`
}

type Penalty struct {
	ID           int64     `json:"id"`
	UserID       int       `json:"user_id"`
	PenaltyHours float64   `json:"penalty_hours"`
	CreatedAt    time.Time `json:"created_at"`
}
