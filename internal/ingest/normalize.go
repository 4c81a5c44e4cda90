package ingest

import (
	"errors"
	"fmt"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/youtube"
)

// ErrMissingRequired rejects a record that cannot be keyed or ordered.
// The surrounding batch continues; the rejection is counted on the job.
type ErrMissingRequired struct {
	VideoID string
	Field   string
}

func (e *ErrMissingRequired) Error() string {
	if e.VideoID == "" {
		return fmt.Sprintf("missing required field %s", e.Field)
	}
	return fmt.Sprintf("video %s: missing required field %s", e.VideoID, e.Field)
}

// IsMissingRequired reports whether err is a required-field rejection.
func IsMissingRequired(err error) bool {
	var target *ErrMissingRequired
	return errors.As(err, &target)
}

// Normalize converts a raw API video into a video record. Identity fields
// are mandatory; every optional field gets an explicit default so that
// downstream feature extraction never distinguishes "absent" from "zero"
// by accident. Absent engagement counters set the paired visibility flag:
// a nil comment count means the channel disabled comments, while a present
// zero means nobody has commented yet.
func Normalize(raw *youtube.RawVideo) (*models.Video, error) {
	if raw.VideoID == "" {
		return nil, &ErrMissingRequired{Field: "videoId"}
	}
	if raw.ChannelID == "" {
		return nil, &ErrMissingRequired{VideoID: raw.VideoID, Field: "channelId"}
	}
	if raw.PublishedAt == nil || raw.PublishedAt.IsZero() {
		return nil, &ErrMissingRequired{VideoID: raw.VideoID, Field: "publishedAt"}
	}

	video := models.NewVideo(raw.VideoID, raw.ChannelID, raw.Title, *raw.PublishedAt)
	video.Description = raw.Description
	video.CategoryID = raw.CategoryID
	if len(raw.Tags) > 0 {
		video.Tags = raw.Tags
	}

	seconds, degraded, err := ParseDuration(raw.Duration)
	if err != nil {
		seconds = 0
		degraded = true
	}
	video.DurationSeconds = seconds
	video.DurationRaw = raw.Duration
	video.DurationDegraded = degraded
	video.ContentType = Classify(seconds, degraded)

	video.CommentsDisabled = raw.CommentCount == nil
	video.LikesHidden = raw.LikeCount == nil

	return video, nil
}
