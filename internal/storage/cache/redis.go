package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

var _ discount.Cache = (*Redis)(nil)

// Redis is a candidate cache shared between service instances. Backend
// failures are logged and treated as misses.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis creates a Redis cache on top of client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// NewRedisClient parses redisURL and returns a connected client.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]discount.Discount, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zctx.From(ctx).Warn("Candidate cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	discounts, err := decodeDiscounts(data)
	if err != nil {
		zctx.From(ctx).Warn("Candidate cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return discounts, true
}

func (c *Redis) Set(ctx context.Context, key string, discounts []discount.Discount, ttl time.Duration) {
	data, err := encodeDiscounts(discounts)
	if err != nil {
		zctx.From(ctx).Warn("Candidate cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Candidate cache write failed", zap.String("key", key), zap.Error(err))
	}
}
