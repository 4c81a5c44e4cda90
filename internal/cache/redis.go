package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a Cache backed by a Redis server. If the URL is empty, invalid,
// or the server is unreachable at startup, the client stays nil and every
// operation degrades to a miss, so the collector keeps serving without a
// cache rather than failing to boot.
type Redis struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewRedis connects to the Redis at redisURL and verifies the connection
// with a short ping.
func NewRedis(redisURL string, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	if redisURL == "" {
		log.Warn("No Redis URL configured, caching disabled")
		return &Redis{log: log}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn("Invalid Redis URL, caching disabled", zap.Error(err))
		return &Redis{log: log}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Redis connection failed, caching disabled", zap.Error(err))
		return &Redis{log: log}
	}

	log.Info("Redis connected, caching enabled")
	return &Redis{rdb: rdb, log: log}
}

// Enabled reports whether a live Redis connection backs this cache.
func (r *Redis) Enabled() bool { return r.rdb != nil }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r.rdb == nil {
		return nil, false, nil
	}

	data, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context, key string) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx, key).Err()
}

func (r *Redis) Close() error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
