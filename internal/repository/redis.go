package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const suppressedTokenPrefix = "push:apns:suppressed:"

// RedisRepository remembers device tokens the gateway reported as no longer
// active so later requests skip them.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// IsTokenSuppressed returns true if the token is currently marked as inactive.
func (r *RedisRepository) IsTokenSuppressed(ctx context.Context, token string) (bool, error) {
	exists, err := r.client.Exists(ctx, suppressedTokenPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// SuppressToken marks a token inactive. since is the time the gateway says the
// token stopped being valid and is stored for inspection.
func (r *RedisRepository) SuppressToken(ctx context.Context, token string, since time.Time) error {
	value := "1"
	if !since.IsZero() {
		value = since.UTC().Format(time.RFC3339)
	}
	return r.client.SetEX(ctx, suppressedTokenPrefix+token, value, r.ttl).Err()
}
