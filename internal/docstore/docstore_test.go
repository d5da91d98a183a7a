package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	logger := zerolog.Nop()
	store, err := Open(filepath.Join(t.TempDir(), "docs.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestGetMissingDocument(t *testing.T) {
	store := setupStore(t)

	var doc testDoc
	found, err := store.Get(context.Background(), "things", "nope", &doc)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpsertAndGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, "things", "a", testDoc{Name: "first", Count: 1}, false)
	require.NoError(t, err)

	var doc testDoc
	found, err := store.Get(ctx, "things", "a", &doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first", doc.Name)
	assert.Equal(t, 1, doc.Count)

	// Full upsert replaces the document.
	err = store.Upsert(ctx, "things", "a", testDoc{Name: "second"}, false)
	require.NoError(t, err)

	found, err = store.Get(ctx, "things", "a", &doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "second", doc.Name)
	assert.Equal(t, 0, doc.Count)
}

func TestUpsertMerge(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, "things", "a", map[string]any{"name": "first", "count": 3}, false)
	require.NoError(t, err)

	err = store.Upsert(ctx, "things", "a", map[string]any{"name": "patched"}, true)
	require.NoError(t, err)

	var doc testDoc
	found, err := store.Get(ctx, "things", "a", &doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "patched", doc.Name)
	assert.Equal(t, 3, doc.Count, "untouched field survives merge")
}

func TestRunTransactionRollsBackOnError(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	sentinel := errors.New("abort")
	err := store.RunTransaction(ctx, func(tx *Tx) error {
		if err := tx.Set("things", "a", testDoc{Name: "ghost"}); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	var doc testDoc
	found, err := store.Get(ctx, "things", "a", &doc)
	require.NoError(t, err)
	assert.False(t, found, "write inside aborted transaction must not persist")
}

func TestRunTransactionReadThenWrite(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "things", "a", testDoc{Name: "x", Count: 1}, false))

	err := store.RunTransaction(ctx, func(tx *Tx) error {
		var doc testDoc
		found, err := tx.Get("things", "a", &doc)
		if err != nil {
			return err
		}
		if !found {
			return errors.New("expected document")
		}
		doc.Count++
		return tx.Set("things", "a", doc)
	})
	require.NoError(t, err)

	var doc testDoc
	_, err = store.Get(ctx, "things", "a", &doc)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Count)
}

func TestRunTransactionExpiredContext(t *testing.T) {
	store := setupStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.RunTransaction(ctx, func(tx *Tx) error {
		return tx.Set("things", "a", testDoc{Name: "late"})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable, "deadline and cancel read as store pressure")
}

func TestQueryByField(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "bookings", "b1", map[string]any{"requesterId": "alice"}, false))
	require.NoError(t, store.Upsert(ctx, "bookings", "b2", map[string]any{"requesterId": "bob"}, false))
	require.NoError(t, store.Upsert(ctx, "bookings", "b3", map[string]any{"requesterId": "alice"}, false))

	docs, err := store.Query(ctx, "bookings", "requesterId", "alice")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b1", docs[0].ID)
	assert.Equal(t, "b3", docs[1].ID)
}
