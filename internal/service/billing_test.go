package service

import (
	"context"
	"testing"
	"time"

	"campus_parking/internal/config"
	"campus_parking/internal/domain"
	"campus_parking/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCharge(t *testing.T) {
	start := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		elapsed     time.Duration
		wantMinutes int64
		wantHours   float64
	}{
		{"ten seconds bills one minute", 10 * time.Second, 1, 1.0 / 60},
		{"zero length bills one minute", 0, 1, 1.0 / 60},
		{"partial minute rounds up", 61 * time.Second, 2, 2.0 / 60},
		{"half hour", 30 * time.Minute, 30, 0.5},
		{"forty five minutes", 45 * time.Minute, 45, 0.75},
		{"ninety minutes", 90 * time.Minute, 90, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ComputeCharge(start, start.Add(tt.elapsed))
			require.NoError(t, err)
			assert.Equal(t, tt.wantMinutes, c.ElapsedMinutes)
			assert.InDelta(t, tt.wantHours, c.Hours, 1e-12)
		})
	}

	_, err := ComputeCharge(start, start.Add(-time.Second))
	assert.Error(t, err)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name                string
		charge, remaining   float64
		wantDeduct, wantPen float64
	}{
		{"covered", 0.75, 2.0, 0.75, 0},
		{"exactly covered", 1.5, 1.5, 1.5, 0},
		{"shortfall", 1.5, 0.5, 0.5, 1.0},
		{"empty balance", 2.0, 0, 0, 2.0},
		{"charge far beyond balance", 1000, 0.25, 0.25, 999.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deduct, penalty := Split(tt.charge, tt.remaining)
			assert.InDelta(t, tt.wantDeduct, deduct, 1e-12)
			assert.InDelta(t, tt.wantPen, penalty, 1e-12)
			assert.LessOrEqual(t, deduct, tt.remaining)
		})
	}
}

func TestOverageMessage(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{1, "exceeded your balance by 1 hour"},
		{1 + 23.0/60, "exceeded your balance by 1 hour 23 minutes"},
		{2.5, "exceeded your balance by 2 hours 30 minutes"},
		{0.5, "exceeded your balance by 30 minutes"},
		{1.0 / 60, "exceeded your balance by 1 minute"},
		{0.004, "exceeded your balance by less than a minute"},
		{59.6 / 60, "exceeded your balance by 1 hour"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OverageMessage(tt.hours))
	}
}

func TestBill_DeductsFromOldestSubscription(t *testing.T) {
	store := newMemStore()
	store.seedUser(1, domain.RoleUser)
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newerID := store.seedSubscription(1, 10, older.Add(48*time.Hour))
	olderID := store.seedSubscription(1, 0.5, older)

	start := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	engine := NewBillingEngine(config.ShortfallPenalize)

	var result *BillingResult
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		result, err = engine.Bill(ctx, tx, 1, start, start.Add(90*time.Minute))
		return err
	})
	require.NoError(t, err)

	require.NotNil(t, result.SubscriptionID)
	assert.Equal(t, olderID, *result.SubscriptionID)
	assert.InDelta(t, 0.5, result.HoursDeducted, 1e-12)
	assert.InDelta(t, 1.0, result.PenaltyHours, 1e-12)
	assert.Zero(t, *result.RemainingBalance)

	l := store.snapshot()
	assert.Zero(t, l.subs[olderID].HoursRemaining)
	assert.Equal(t, domain.SubscriptionExhausted, l.subs[olderID].Status)
	assert.Equal(t, 10.0, l.subs[newerID].HoursRemaining, "a session never spans two subscriptions")
	require.Len(t, l.penalties, 1)
	assert.InDelta(t, 1.0, l.penalties[0].PenaltyHours, 1e-12)
}

func TestBill_NoSubscription(t *testing.T) {
	start := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

	t.Run("penalize records the whole charge", func(t *testing.T) {
		store := newMemStore()
		var result *BillingResult
		err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			var err error
			result, err = NewBillingEngine(config.ShortfallPenalize).Bill(ctx, tx, 7, start, start.Add(45*time.Minute))
			return err
		})
		require.NoError(t, err)
		assert.Nil(t, result.SubscriptionID)
		assert.Zero(t, result.HoursDeducted)
		assert.InDelta(t, 0.75, result.PenaltyHours, 1e-12)
		assert.Len(t, store.snapshot().penalties, 1)
	})

	t.Run("reject writes nothing", func(t *testing.T) {
		store := newMemStore()
		err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			_, err := NewBillingEngine(config.ShortfallReject).Bill(ctx, tx, 7, start, start.Add(45*time.Minute))
			return err
		})
		assert.Equal(t, CodeNoActiveSubscription, ErrorCodeOf(err))
		assert.Empty(t, store.snapshot().penalties)
	})
}

func TestBill_ClampNeverGoesNegative(t *testing.T) {
	store := newMemStore()
	id := store.seedSubscription(3, 0.1, time.Now())
	start := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := NewBillingEngine(config.ShortfallPenalize).Bill(ctx, tx, 3, start, start.Add(72*time.Hour))
		return err
	})
	require.NoError(t, err)
	sub := store.snapshot().subs[id]
	assert.Zero(t, sub.HoursRemaining)
	assert.InDelta(t, 0.1, sub.HoursUsed, 1e-12)
}

func TestBill_RoundingResidueExhaustsSubscription(t *testing.T) {
	store := newMemStore()
	store.seedUser(1, domain.RoleUser)
	purchased := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	firstID := store.seedSubscription(1, 1.0, purchased)
	secondID := store.seedSubscription(1, 10, purchased.Add(24*time.Hour))

	engine := NewBillingEngine(config.ShortfallPenalize)
	start := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	bill := func(minutes int) *BillingResult {
		var result *BillingResult
		err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			var err error
			result, err = engine.Bill(ctx, tx, 1, start, start.Add(time.Duration(minutes)*time.Minute))
			return err
		})
		require.NoError(t, err)
		return result
	}

	// 1.0 - 0.7 - 0.3 để lại ~5.55e-17 giờ trong float64
	bill(42)
	second := bill(18)
	assert.Equal(t, firstID, *second.SubscriptionID)
	assert.Zero(t, second.PenaltyHours)

	l := store.snapshot()
	assert.Zero(t, l.subs[firstID].HoursRemaining)
	assert.Equal(t, domain.SubscriptionExhausted, l.subs[firstID].Status)

	third := bill(60)
	require.NotNil(t, third.SubscriptionID)
	assert.Equal(t, secondID, *third.SubscriptionID)
	assert.InDelta(t, 1.0, third.HoursDeducted, 1e-12)
	assert.Zero(t, third.PenaltyHours)
	assert.InDelta(t, 9.0, *third.RemainingBalance, 1e-12)
	assert.Empty(t, store.snapshot().penalties)
}
