package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"campus_parking/internal/config"
	"campus_parking/internal/domain"
	"campus_parking/internal/metrics"
	"campus_parking/internal/repository"
)

// Anything below this is floating-point noise, not an overage.
const hourEpsilon = repository.BalanceEpsilon

// Charge is the billable size of one session.
type Charge struct {
	ElapsedMinutes int64
	Hours          float64
}

// ComputeCharge rounds the session up to whole minutes with a one-minute floor.
func ComputeCharge(start, end time.Time) (Charge, error) {
	if end.Before(start) {
		return Charge{}, fmt.Errorf("session end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	minutes := int64(math.Ceil(end.Sub(start).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return Charge{ElapsedMinutes: minutes, Hours: float64(minutes) / 60}, nil
}

// Split divides a charge between what the balance covers and the overage.
func Split(chargeHours, hoursRemaining float64) (deduct, penalty float64) {
	if hoursRemaining < 0 {
		hoursRemaining = 0
	}
	deduct = math.Min(chargeHours, hoursRemaining)
	penalty = chargeHours - hoursRemaining
	if penalty <= hourEpsilon {
		penalty = 0
	}
	return deduct, penalty
}

// OverageMessage renders penalty hours as "exceeded your balance by 1 hour 23 minutes".
func OverageMessage(penaltyHours float64) string {
	total := int64(math.Round(penaltyHours * 60))
	if total <= 0 {
		return "exceeded your balance by less than a minute"
	}
	hours, minutes := total/60, total%60
	var parts []string
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	return "exceeded your balance by " + strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// BillingResult is what the end-session path reports back to the caller.
type BillingResult struct {
	Charge           Charge
	HoursDeducted    float64
	PenaltyHours     float64
	SubscriptionID   *int64
	RemainingBalance *float64
}

type BillingEngine struct {
	policy config.ShortfallPolicy
}

func NewBillingEngine(policy config.ShortfallPolicy) *BillingEngine {
	if policy == "" {
		policy = config.ShortfallPenalize
	}
	return &BillingEngine{policy: policy}
}

// Bill charges one session against the user's oldest active subscription and
// records any overage, all inside the caller's transaction. Nothing is written
// when the shortfall policy rejects the session.
func (b *BillingEngine) Bill(ctx context.Context, tx repository.Tx, userID int, start, end time.Time) (*BillingResult, error) {
	charge, err := ComputeCharge(start, end)
	if err != nil {
		return nil, newAppError(CodeInvalidInput, "session end precedes its start", err)
	}
	result := &BillingResult{Charge: charge}

	sub, err := tx.Subscriptions().FindOldestActiveForUpdate(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if b.policy == config.ShortfallReject {
			return nil, newAppError(CodeNoActiveSubscription, "no active subscription with remaining hours", nil).
				with("chargeHours", charge.Hours)
		}
		result.PenaltyHours = charge.Hours
	case err != nil:
		return nil, storeError("Billing.FindOldestActive", err)
	default:
		deduct, penalty := Split(charge.Hours, sub.HoursRemaining)
		remaining, err := tx.Subscriptions().Deduct(ctx, sub.ID, deduct)
		if err != nil {
			return nil, storeError("Billing.Deduct", err)
		}
		id := sub.ID
		result.SubscriptionID = &id
		result.RemainingBalance = &remaining
		result.HoursDeducted = deduct
		result.PenaltyHours = penalty
	}

	if result.PenaltyHours > 0 {
		if _, err := tx.Penalties().Create(ctx, &domain.Penalty{
			UserID:       userID,
			PenaltyHours: result.PenaltyHours,
			CreatedAt:    end,
		}); err != nil {
			return nil, storeError("Billing.CreatePenalty", err)
		}
	}
	return result, nil
}

// observe is called only after the surrounding transaction committed.
func (r *BillingResult) observe() {
	metrics.BilledHours.Add(r.HoursDeducted)
	metrics.PenaltyHours.Add(r.PenaltyHours)
}
