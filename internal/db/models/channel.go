package models

import "time"

// Channel represents a YouTube channel evaluated for the Sri Lanka corpus.
type Channel struct {
	ChannelID         string                 `db:"channel_id" json:"channel_id"`
	Title             string                 `db:"title" json:"title"`
	UploadsPlaylistID string                 `db:"uploads_playlist_id" json:"uploads_playlist_id"`
	Country           *string                `db:"country" json:"country,omitempty"`
	SubscriberCount   int64                  `db:"subscriber_count" json:"subscriber_count"`
	VideoCount        int64                  `db:"video_count" json:"video_count"`
	RelevanceScore    float64                `db:"relevance_score" json:"relevance_score"`
	Verified          bool                   `db:"verified" json:"verified"`
	ScoreSignals      map[string]interface{} `db:"score_signals" json:"score_signals,omitempty"`
	LastScoredAt      *time.Time             `db:"last_scored_at" json:"last_scored_at,omitempty"`
	LastHarvestedAt   *time.Time             `db:"last_harvested_at" json:"last_harvested_at,omitempty"`
	CreatedAt         time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time              `db:"updated_at" json:"updated_at"`
}

// NewChannel creates a new Channel with the given identity information.
func NewChannel(channelID, title, uploadsPlaylistID string) *Channel {
	now := time.Now()
	return &Channel{
		ChannelID:         channelID,
		Title:             title,
		UploadsPlaylistID: uploadsPlaylistID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ApplyScore records a relevance scoring result and its input signals.
func (c *Channel) ApplyScore(score float64, verified bool, signals map[string]interface{}) {
	now := time.Now()
	c.RelevanceScore = score
	c.Verified = verified
	c.ScoreSignals = signals
	c.LastScoredAt = &now
	c.UpdatedAt = now
}

// MarkHarvested records the completion time of a harvest pass.
func (c *Channel) MarkHarvested(at time.Time) {
	c.LastHarvestedAt = &at
	c.UpdatedAt = time.Now()
}
