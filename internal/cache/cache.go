// Package cache provides the read cache behind the query API. Cached values
// are serialized JSON responses keyed by resource, stored either in process
// memory or in Redis depending on deployment.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the cache-aside surface used by the query handlers. A miss is
// (nil, false, nil); errors are reserved for backend failures. All
// implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Close() error
}

// VideoKey names the cached detail response for one video.
func VideoKey(videoID string) string {
	return fmt.Sprintf("video:%s", videoID)
}

// ChannelKey names the cached detail response for one channel.
func ChannelKey(channelID string) string {
	return fmt.Sprintf("channel:%s", channelID)
}
