// Package youtube wraps the YouTube Data API v3 behind plain structs and
// per-call unit costs, so the rest of the collector can reason about quota
// and retries without touching the generated API types.
package youtube

import "time"

// Unit costs per YouTube Data API v3 operation. Every call site reserves
// the exact cost from the quota pool before issuing the call.
const (
	CostChannelsList      int64 = 1
	CostPlaylistItemsList int64 = 1
	CostVideosList        int64 = 1
	CostSearchList        int64 = 100
)

// MaxBatchSize is the most video IDs one videos.list call accepts.
const MaxBatchSize = 50

// RawChannel is a channel as returned by channels.list. Country is a
// pointer because many channels never declare one; absence is a neutral
// relevance signal, not a mismatch.
type RawChannel struct {
	ChannelID         string
	Title             string
	Description       string
	Country           *string
	UploadsPlaylistID string
	SubscriberCount   int64
	VideoCount        int64
}

// RawVideo is a video as returned by videos.list, before normalization.
// Optional fields are pointers so the normalizer can distinguish a value
// the platform reported as zero from one it withheld entirely.
type RawVideo struct {
	VideoID      string
	ChannelID    string
	Title        string
	Description  string
	PublishedAt  *time.Time
	Duration     string
	CategoryID   string
	Tags         []string
	ViewCount    *int64
	LikeCount    *int64
	CommentCount *int64
}

// UploadItem is one entry of an uploads playlist page: the video ID plus
// its publish time, which the harvester uses for the lookback cut-off
// before spending units on detail lookups.
type UploadItem struct {
	VideoID     string
	PublishedAt time.Time
}

// UploadsPage is one page of a channel's uploads playlist.
type UploadsPage struct {
	Items         []UploadItem
	NextPageToken string
}

// BatchVideoIDs splits ids into chunks no larger than batchSize, preserving
// order. Sizes outside (0, MaxBatchSize] fall back to MaxBatchSize.
func BatchVideoIDs(ids []string, batchSize int) [][]string {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if len(ids) == 0 {
		return nil
	}

	var batches [][]string
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}

	return batches
}
