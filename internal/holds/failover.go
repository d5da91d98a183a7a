package holds

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"courtbook/internal/domain"

	"github.com/rs/zerolog"
)

// recoveryInterval is how long the failover waits before probing the
// primary again.
const recoveryInterval = time.Minute

// FailoverHoldRepository serves from the primary (Redis) and falls back to
// the in-memory repository when the primary errors, probing it again after
// a recovery interval.
type FailoverHoldRepository struct {
	primary  domain.HoldRepository
	fallback domain.HoldRepository
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverHoldRepository(primary, fallback domain.HoldRepository, logger *zerolog.Logger) *FailoverHoldRepository {
	return &FailoverHoldRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverHoldRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary hold repository failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverHoldRepository) shouldProbe() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) < recoveryInterval {
		return false
	}
	r.lastCheck = time.Now()
	return true
}

func (r *FailoverHoldRepository) Track(ctx context.Context, bookingID string, expiresAt time.Time) error {
	if !r.isDown.Load() {
		if err := r.primary.Track(ctx, bookingID, expiresAt); err == nil {
			return nil
		} else {
			r.markDown(err)
		}
	} else if r.shouldProbe() {
		if err := r.primary.Track(ctx, bookingID, expiresAt); err == nil {
			r.isDown.Store(false)
			return nil
		}
	}
	return r.fallback.Track(ctx, bookingID, expiresAt)
}

func (r *FailoverHoldRepository) Remove(ctx context.Context, bookingID string) error {
	// Remove from both so a hold never resurrects after recovery.
	var primaryErr error
	if !r.isDown.Load() {
		primaryErr = r.primary.Remove(ctx, bookingID)
		if primaryErr != nil {
			r.markDown(primaryErr)
		}
	}
	return r.fallback.Remove(ctx, bookingID)
}

func (r *FailoverHoldRepository) Expired(ctx context.Context, now time.Time) ([]string, error) {
	if !r.isDown.Load() {
		ids, err := r.primary.Expired(ctx, now)
		if err == nil {
			fallbackIDs, fErr := r.fallback.Expired(ctx, now)
			if fErr == nil {
				ids = mergeIDs(ids, fallbackIDs)
			}
			return ids, nil
		}
		r.markDown(err)
	} else if r.shouldProbe() {
		if ids, err := r.primary.Expired(ctx, now); err == nil {
			r.isDown.Store(false)
			fallbackIDs, fErr := r.fallback.Expired(ctx, now)
			if fErr == nil {
				ids = mergeIDs(ids, fallbackIDs)
			}
			return ids, nil
		}
	}
	return r.fallback.Expired(ctx, now)
}

func mergeIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := append([]string(nil), a...)
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
