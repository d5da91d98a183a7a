package holds

import (
	"context"
	"sync"
	"time"
)

// MemoryHoldRepository is the in-process fallback used when Redis is down
// or not configured. Holds tracked here do not survive a restart.
type MemoryHoldRepository struct {
	mu    sync.Mutex
	holds map[string]time.Time
}

func NewMemoryHoldRepository() *MemoryHoldRepository {
	return &MemoryHoldRepository{holds: make(map[string]time.Time)}
}

func (r *MemoryHoldRepository) Track(ctx context.Context, bookingID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holds[bookingID] = expiresAt
	return nil
}

func (r *MemoryHoldRepository) Remove(ctx context.Context, bookingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.holds, bookingID)
	return nil
}

func (r *MemoryHoldRepository) Expired(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, expiresAt := range r.holds {
		if !expiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
