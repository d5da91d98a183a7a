package holds

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const holdSetKey = "booking_holds"

// RedisHoldRepository keeps holding booking ids in a sorted set scored by
// expiry time, so the sweeper can pull everything past due in one call.
type RedisHoldRepository struct {
	client *redis.Client
}

func NewRedisHoldRepository(client *redis.Client) *RedisHoldRepository {
	return &RedisHoldRepository{client: client}
}

func (r *RedisHoldRepository) Track(ctx context.Context, bookingID string, expiresAt time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	err := r.client.ZAdd(ctx, holdSetKey, redis.Z{
		Score:  float64(expiresAt.Unix()),
		Member: bookingID,
	}).Err()
	if err != nil {
		return fmt.Errorf("track hold in redis: %w", err)
	}
	return nil
}

func (r *RedisHoldRepository) Remove(ctx context.Context, bookingID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.ZRem(ctx, holdSetKey, bookingID).Err(); err != nil {
		return fmt.Errorf("remove hold from redis: %w", err)
	}
	return nil
}

func (r *RedisHoldRepository) Expired(ctx context.Context, now time.Time) ([]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	ids, err := r.client.ZRangeByScore(ctx, holdSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read expired holds from redis: %w", err)
	}
	return ids, nil
}
