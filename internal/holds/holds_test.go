package holds

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *RedisHoldRepository {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisHoldRepository(client)
}

func TestRedisHoldLifecycle(t *testing.T) {
	repo := setupRedis(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Track(ctx, "b1", now.Add(-time.Minute)))
	require.NoError(t, repo.Track(ctx, "b2", now.Add(time.Hour)))

	expired, err := repo.Expired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, expired)

	require.NoError(t, repo.Remove(ctx, "b1"))

	expired, err = repo.Expired(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestRedisTrackUpdatesExpiry(t *testing.T) {
	repo := setupRedis(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Track(ctx, "b1", now.Add(-time.Minute)))
	require.NoError(t, repo.Track(ctx, "b1", now.Add(time.Hour)))

	expired, err := repo.Expired(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, expired, "re-tracking pushes the expiry forward")
}

func TestMemoryHoldLifecycle(t *testing.T) {
	repo := NewMemoryHoldRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Track(ctx, "b1", now.Add(-time.Second)))
	require.NoError(t, repo.Track(ctx, "b2", now.Add(time.Hour)))

	expired, err := repo.Expired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, expired)

	require.NoError(t, repo.Remove(ctx, "b1"))
	expired, err = repo.Expired(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestFailoverFallsBackWhenPrimaryDies(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zerolog.Nop()
	primary := NewRedisHoldRepository(client)
	fallback := NewMemoryHoldRepository()
	repo := NewFailoverHoldRepository(primary, fallback, &logger)

	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Track(ctx, "b1", now.Add(-time.Minute)))

	// Primary goes away; tracking keeps working through the fallback.
	mr.Close()
	require.NoError(t, repo.Track(ctx, "b2", now.Add(-time.Minute)))

	expired, err := repo.Expired(ctx, now)
	require.NoError(t, err)
	assert.Contains(t, expired, "b2")
}

func TestFailoverMergesPrimaryAndFallback(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zerolog.Nop()
	primary := NewRedisHoldRepository(client)
	fallback := NewMemoryHoldRepository()
	repo := NewFailoverHoldRepository(primary, fallback, &logger)

	ctx := context.Background()
	now := time.Now()

	require.NoError(t, primary.Track(ctx, "redis-hold", now.Add(-time.Minute)))
	require.NoError(t, fallback.Track(ctx, "memory-hold", now.Add(-time.Minute)))

	expired, err := repo.Expired(ctx, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"redis-hold", "memory-hold"}, expired)
}
