package models

import "time"

// Content type classification derived from video duration.
const (
	ContentTypeShort = "short"
	ContentTypeLong  = "long"
)

// Tracking lifecycle states for a video. Discovered videos enter the
// tracking rotation, active ones are polled on a cadence, and retired
// states are terminal.
const (
	TrackingDiscovered   = "discovered"
	TrackingActive       = "active"
	TrackingRetired      = "retired"
	TrackingRetiredError = "retired_error"
)

// Video represents a YouTube video whose metadata has been normalized
// and whose view counts are tracked over time.
type Video struct {
	VideoID          string     `db:"video_id" json:"video_id"`
	ChannelID        string     `db:"channel_id" json:"channel_id"`
	Title            string     `db:"title" json:"title"`
	Description      string     `db:"description" json:"description"`
	PublishedAt      time.Time  `db:"published_at" json:"published_at"`
	DurationSeconds  int        `db:"duration_seconds" json:"duration_seconds"`
	DurationRaw      string     `db:"duration_raw" json:"duration_raw"`
	DurationDegraded bool       `db:"duration_degraded" json:"duration_degraded"`
	ContentType      string     `db:"content_type" json:"content_type"`
	CategoryID       string     `db:"category_id" json:"category_id"`
	Tags             []string   `db:"tags" json:"tags"`
	CommentsDisabled bool       `db:"comments_disabled" json:"comments_disabled"`
	LikesHidden      bool       `db:"likes_hidden" json:"likes_hidden"`
	TrackingStatus   string     `db:"tracking_status" json:"tracking_status"`
	NextPollAt       *time.Time `db:"next_poll_at" json:"next_poll_at,omitempty"`
	FirstSeenAt      time.Time  `db:"first_seen_at" json:"first_seen_at"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// NewVideo creates a Video in the discovered state. Normalization fills in
// the remaining fields before persistence.
func NewVideo(videoID, channelID, title string, publishedAt time.Time) *Video {
	now := time.Now()
	return &Video{
		VideoID:        videoID,
		ChannelID:      channelID,
		Title:          title,
		PublishedAt:    publishedAt,
		Tags:           []string{},
		TrackingStatus: TrackingDiscovered,
		FirstSeenAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Activate moves the video into active tracking and schedules its next poll.
func (v *Video) Activate(nextPoll time.Time) {
	v.TrackingStatus = TrackingActive
	v.NextPollAt = &nextPoll
	v.UpdatedAt = time.Now()
}

// Retire takes the video out of the tracking rotation. Terminal.
func (v *Video) Retire() {
	v.TrackingStatus = TrackingRetired
	v.NextPollAt = nil
	v.UpdatedAt = time.Now()
}

// RetireWithError marks the video unreachable (deleted or private). Terminal.
func (v *Video) RetireWithError() {
	v.TrackingStatus = TrackingRetiredError
	v.NextPollAt = nil
	v.UpdatedAt = time.Now()
}

// TrackingExpired reports whether the video has aged out of its tracking
// window as of the given observation time.
func (v *Video) TrackingExpired(now time.Time, window time.Duration) bool {
	return now.Sub(v.PublishedAt) > window
}
