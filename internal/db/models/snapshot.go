package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is one append-only observation of a video's engagement counters.
// At most one snapshot exists per (video, observation time).
type Snapshot struct {
	VideoID      string    `db:"video_id" json:"video_id"`
	ObservedAt   time.Time `db:"observed_at" json:"observed_at"`
	ViewCount    int64     `db:"view_count" json:"view_count"`
	LikeCount    *int64    `db:"like_count" json:"like_count,omitempty"`
	CommentCount *int64    `db:"comment_count" json:"comment_count,omitempty"`
	JobID        uuid.UUID `db:"job_id" json:"job_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// NewSnapshot creates a snapshot observation. Like and comment counts are
// nil when hidden or disabled at observation time.
func NewSnapshot(videoID string, observedAt time.Time, viewCount int64, likeCount, commentCount *int64, jobID uuid.UUID) *Snapshot {
	return &Snapshot{
		VideoID:      videoID,
		ObservedAt:   observedAt,
		ViewCount:    viewCount,
		LikeCount:    likeCount,
		CommentCount: commentCount,
		JobID:        jobID,
		CreatedAt:    time.Now(),
	}
}
