package availability

import (
	"context"
	"path/filepath"
	"testing"

	"courtbook/internal/docstore"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	logger := zerolog.Nop()
	docs, err := docstore.Open(filepath.Join(t.TempDir(), "avail.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	store, err := New(docs, models.OperatingHours{Open: "08:00", Close: "22:00"}, 60)
	require.NoError(t, err)
	return store
}

func TestNewRejectsBrokenHours(t *testing.T) {
	logger := zerolog.Nop()
	docs, err := docstore.Open(filepath.Join(t.TempDir(), "avail.db"), &logger)
	require.NoError(t, err)
	defer docs.Close()

	_, err = New(docs, models.OperatingHours{Open: "22:00", Close: "08:00"}, 60)
	assert.Error(t, err)

	_, err = New(docs, models.OperatingHours{Open: "08:15", Close: "22:00"}, 60)
	assert.Error(t, err)
}

func TestDayTemplate(t *testing.T) {
	store := setupStore(t)

	day := store.DayTemplate()
	assert.Len(t, day, 14) // 08:00 .. 21:00

	for key, slot := range day {
		assert.True(t, slot.IsAvailable, "slot %s", key)
		assert.Empty(t, slot.ReservedBy)
		assert.Empty(t, slot.ReservationID)
	}

	_, hasOpen := day["08:00"]
	_, hasLast := day["21:00"]
	_, hasClose := day["22:00"]
	assert.True(t, hasOpen)
	assert.True(t, hasLast)
	assert.False(t, hasClose, "close time is exclusive")
}

func TestLoadSynthesizesDefault(t *testing.T) {
	store := setupStore(t)

	month, err := store.Load(context.Background(), "2024-06")
	require.NoError(t, err)
	assert.Equal(t, "2024-06", month.YearMonth)
	assert.NotNil(t, month.Courts)
	assert.Empty(t, month.Courts)
}

func TestMergeDay(t *testing.T) {
	store := setupStore(t)

	stored := models.DayAvailability{
		"14:00": {IsAvailable: false, ReservedBy: "alice", ReservationID: "r1"},
	}

	merged := MergeDay(store.DayTemplate(), stored)
	assert.Len(t, merged, 14, "every operating-hour key present")
	assert.False(t, merged["14:00"].IsAvailable)
	assert.Equal(t, "alice", merged["14:00"].ReservedBy)
	assert.True(t, merged["15:00"].IsAvailable, "unstored key falls back to template")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	month, err := store.Load(ctx, "2024-06")
	require.NoError(t, err)

	day := store.DayTemplate()
	day["14:00"] = models.TimeSlot{ReservedBy: "alice", ReservationID: "r1"}
	month.SetDay("court-a", "2024-06-01", day)

	require.NoError(t, store.Save(ctx, month))

	reloaded, err := store.Load(ctx, "2024-06")
	require.NoError(t, err)
	got := reloaded.Day("court-a", "2024-06-01")
	require.NotNil(t, got)
	assert.False(t, got["14:00"].IsAvailable)
	assert.Equal(t, "r1", got["14:00"].ReservationID)
}

func TestReadMergesOverTemplate(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// Nothing stored: full default day.
	day, err := store.Read(ctx, "court-a", "2024-06-01")
	require.NoError(t, err)
	assert.Len(t, day, 14)
	assert.True(t, day["08:00"].IsAvailable)

	// Persist a partial day, read back a complete one.
	month, err := store.Load(ctx, "2024-06")
	require.NoError(t, err)
	month.SetDay("court-a", "2024-06-01", models.DayAvailability{
		"09:00": {IsAvailable: false, ReservedBy: "bob", ReservationID: "r2"},
	})
	require.NoError(t, store.Save(ctx, month))

	day, err = store.Read(ctx, "court-a", "2024-06-01")
	require.NoError(t, err)
	assert.Len(t, day, 14)
	assert.False(t, day["09:00"].IsAvailable)
	assert.True(t, day["10:00"].IsAvailable)
}

func TestReadRejectsBadDate(t *testing.T) {
	store := setupStore(t)

	_, err := store.Read(context.Background(), "court-a", "June 1st")
	assert.Error(t, err)
}
