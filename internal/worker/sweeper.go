package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// HoldExpirer cancels holding bookings whose payment window ran out.
type HoldExpirer interface {
	ExpireHolds(ctx context.Context) (int, error)
}

// HoldSweeper periodically expires unpaid holds. Failures are logged and
// retried on the next tick; the sweeper never stops on its own.
type HoldSweeper struct {
	bookings HoldExpirer
	interval time.Duration
	logger   zerolog.Logger
}

func NewHoldSweeper(bookings HoldExpirer, interval time.Duration, logger *zerolog.Logger) *HoldSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HoldSweeper{
		bookings: bookings,
		interval: interval,
		logger:   logger.With().Str("component", "hold-sweeper").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (w *HoldSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", w.interval).Msg("hold sweeper started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("hold sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *HoldSweeper) sweep(ctx context.Context) {
	expired, err := w.bookings.ExpireHolds(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("sweep failed")
		return
	}
	if expired > 0 {
		w.logger.Info().Int("expired", expired).Msg("holds expired")
	}
}
