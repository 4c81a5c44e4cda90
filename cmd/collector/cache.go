package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/cache"
)

// instrumentedCache counts hits and misses while delegating to the
// configured backend.
type instrumentedCache struct {
	cache.Cache
	hits   prometheus.Counter
	misses prometheus.Counter
}

func (c *instrumentedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := c.Cache.Get(ctx, key)
	if err == nil {
		if ok {
			c.hits.Inc()
		} else {
			c.misses.Inc()
		}
	}
	return value, ok, err
}
