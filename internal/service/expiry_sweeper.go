package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const expiryBatchSize = 100

// ExpirySweeper cancels reserved bookings that were never started within the hold.
type ExpirySweeper struct {
	sessions *SessionService
	hold     time.Duration
	every    time.Duration
	now      func() time.Time
}

func NewExpirySweeper(sessions *SessionService, hold, every time.Duration) *ExpirySweeper {
	if every <= 0 {
		every = time.Minute
	}
	return &ExpirySweeper{sessions: sessions, hold: hold, every: every, now: func() time.Time { return time.Now().UTC() }}
}

// Enabled is false when the hold is zero: reservations then never expire.
func (w *ExpirySweeper) Enabled() bool {
	return w.hold > 0
}

// Run blocks until ctx is cancelled.
func (w *ExpirySweeper) Run(ctx context.Context) {
	if !w.Enabled() {
		log.Info().Msg("reservation expiry disabled (RESERVATION_HOLD_MINUTES=0), reserved bookings are held until cancelled")
		return
	}
	log.Info().Dur("hold", w.hold).Dur("interval", w.every).Msg("reservation expiry sweeper started")

	ticker := time.NewTicker(w.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reservation expiry sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and drains full batches.
func (w *ExpirySweeper) Sweep(ctx context.Context) int {
	passCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	total := 0
	cutoff := w.now().Add(-w.hold)
	for {
		n, err := w.sessions.ExpireStale(passCtx, cutoff, expiryBatchSize)
		total += n
		if err != nil {
			log.Warn().Err(err).Int("expired", total).Msg("reservation expiry pass failed")
			return total
		}
		if n < expiryBatchSize {
			break
		}
	}
	if total > 0 {
		log.Info().Int("expired", total).Time("cutoff", cutoff).Msg("expired stale reservations")
	}
	return total
}
