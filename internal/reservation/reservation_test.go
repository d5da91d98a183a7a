package reservation

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"courtbook/internal/availability"
	"courtbook/internal/docstore"
	"courtbook/internal/models"
	"courtbook/internal/timeslot"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEngine(t *testing.T) (*Engine, *availability.Store) {
	logger := zerolog.Nop()
	docs, err := docstore.Open(filepath.Join(t.TempDir(), "reservation.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	avail, err := availability.New(docs, models.OperatingHours{Open: "08:00", Close: "22:00"}, 60)
	require.NoError(t, err)

	return New(docs, avail, 5*time.Second, &logger), avail
}

func TestReserveAndConflictScenario(t *testing.T) {
	engine, avail := setupEngine(t)
	ctx := context.Background()

	// Court C, 2024-06-01, hours 08:00-22:00, 60 minute slots.
	// User A takes 14:00-16:00.
	err := engine.Reserve(ctx, ReserveParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "14:00", EndTime: "16:00",
		RequesterID: "user-a", ReservationID: "res-a",
	}, nil)
	require.NoError(t, err)

	day, err := avail.Read(ctx, "court-c", "2024-06-01")
	require.NoError(t, err)
	assert.False(t, day["14:00"].IsAvailable)
	assert.False(t, day["15:00"].IsAvailable)
	assert.Equal(t, "user-a", day["14:00"].ReservedBy)
	assert.Equal(t, "res-a", day["15:00"].ReservationID)
	assert.True(t, day["16:00"].IsAvailable)

	// User B overlaps at 15:00 and must see a conflict citing that slot.
	err = engine.Reserve(ctx, ReserveParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "15:00", EndTime: "17:00",
		RequesterID: "user-b", ReservationID: "res-b",
	}, nil)
	require.Error(t, err)
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, []string{"15:00"}, conflict.Keys)

	// A cancels: release 14:00-16:00, then B's identical request succeeds.
	err = engine.Release(ctx, ReleaseParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "14:00", EndTime: "16:00",
		ReservationID: "res-a",
	}, nil)
	require.NoError(t, err)

	err = engine.Reserve(ctx, ReserveParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "15:00", EndTime: "17:00",
		RequesterID: "user-b", ReservationID: "res-b",
	}, nil)
	require.NoError(t, err)
}

func TestReserveTimeoutReadsAsStoreUnavailable(t *testing.T) {
	logger := zerolog.Nop()
	docs, err := docstore.Open(filepath.Join(t.TempDir(), "reservation.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	avail, err := availability.New(docs, models.OperatingHours{Open: "08:00", Close: "22:00"}, 60)
	require.NoError(t, err)

	// A timeout too tight for even one transaction must surface as the
	// retryable store error, not a bare context error.
	engine := New(docs, avail, time.Nanosecond, &logger)
	err = engine.Reserve(context.Background(), ReserveParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "14:00", EndTime: "15:00",
		RequesterID: "user-a", ReservationID: "res-a",
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, docstore.ErrStoreUnavailable)
}

func TestReserveAtomicityOnPartialOverlap(t *testing.T) {
	engine, avail := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.Reserve(ctx, ReserveParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "15:00", EndTime: "16:00",
		RequesterID: "user-a", ReservationID: "res-a",
	}, nil))

	before, err := avail.Read(ctx, "court-c", "2024-06-01")
	require.NoError(t, err)

	// 14:00-17:00 overlaps the taken 15:00 slot; the free 14:00 and 16:00
	// slots must remain untouched after the failed attempt.
	err = engine.Reserve(ctx, ReserveParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "14:00", EndTime: "17:00",
		RequesterID: "user-b", ReservationID: "res-b",
	}, nil)
	require.True(t, IsConflict(err))

	after, err := avail.Read(ctx, "court-c", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed reserve must mutate zero slots")
}

func TestReleaseIdempotent(t *testing.T) {
	engine, avail := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.Reserve(ctx, ReserveParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "10:00", EndTime: "12:00",
		RequesterID: "user-a", ReservationID: "res-a",
	}, nil))

	release := ReleaseParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "10:00", EndTime: "12:00",
		ReservationID: "res-a",
	}
	require.NoError(t, engine.Release(ctx, release, nil))

	once, err := avail.Read(ctx, "court-c", "2024-06-01")
	require.NoError(t, err)

	require.NoError(t, engine.Release(ctx, release, nil))

	twice, err := avail.Read(ctx, "court-c", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.True(t, twice["10:00"].IsAvailable)
	assert.Empty(t, twice["10:00"].ReservedBy)
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	engine, avail := setupEngine(t)
	ctx := context.Background()

	before, err := avail.Read(ctx, "court-c", "2024-06-01")
	require.NoError(t, err)

	require.NoError(t, engine.Reserve(ctx, ReserveParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "09:00", EndTime: "11:00",
		RequesterID: "user-a", ReservationID: "res-a",
	}, nil))
	require.NoError(t, engine.Release(ctx, ReleaseParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "09:00", EndTime: "11:00",
		ReservationID: "res-a",
	}, nil))

	after, err := avail.Read(ctx, "court-c", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReleaseRespectsOwner(t *testing.T) {
	engine, avail := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.Reserve(ctx, ReserveParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "10:00", EndTime: "11:00",
		RequesterID: "user-a", ReservationID: "res-a",
	}, nil))

	// Wrong reservation id leaves the slot claimed.
	require.NoError(t, engine.Release(ctx, ReleaseParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "10:00", EndTime: "11:00",
		ReservationID: "res-other",
	}, nil))

	day, err := avail.Read(ctx, "court-c", "2024-06-01")
	require.NoError(t, err)
	assert.False(t, day["10:00"].IsAvailable)

	// Administrative override (empty reservation id) frees it.
	require.NoError(t, engine.Release(ctx, ReleaseParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "10:00", EndTime: "11:00",
	}, nil))

	day, err = avail.Read(ctx, "court-c", "2024-06-01")
	require.NoError(t, err)
	assert.True(t, day["10:00"].IsAvailable)
}

func TestReserveRejectsInvalidInput(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	err := engine.Reserve(ctx, ReserveParams{
		CourtID: "court-c", Date: "2024-06-01",
		StartTime: "16:00", EndTime: "14:00",
		RequesterID: "user-a", ReservationID: "res-a",
	}, nil)
	assert.ErrorIs(t, err, timeslot.ErrInvalidRange)

	err = engine.Reserve(ctx, ReserveParams{
		CourtID: "court-c", Date: "bad-date",
		StartTime: "14:00", EndTime: "16:00",
		RequesterID: "user-a", ReservationID: "res-a",
	}, nil)
	assert.ErrorIs(t, err, timeslot.ErrInvalidDate)
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	engine, avail := setupEngine(t)
	ctx := context.Background()

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			results <- engine.Reserve(ctx, ReserveParams{
				CourtID: "court-c", Date: "2024-06-01",
				StartTime: "18:00", EndTime: "20:00",
				RequesterID:   "user",
				ReservationID: "res-" + string(rune('a'+id)),
			}, nil)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case IsConflict(err):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successCount, "exactly one writer wins the range")
	assert.Equal(t, numGoroutines-1, conflictCount)

	day, err := avail.Read(ctx, "court-c", "2024-06-01")
	require.NoError(t, err)
	assert.False(t, day["18:00"].IsAvailable)
	assert.False(t, day["19:00"].IsAvailable)
	assert.Equal(t, day["18:00"].ReservationID, day["19:00"].ReservationID)
}
