package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VideoRepository defines operations for managing videos.
type VideoRepository interface {
	// CreateVideo inserts a normalized video. Re-inserting an existing
	// video ID is a no-op so interrupted harvests can re-run safely.
	// Returns true when a row was inserted.
	CreateVideo(ctx context.Context, video *models.Video) (bool, error)

	// GetVideoByID retrieves a single video by ID.
	GetVideoByID(ctx context.Context, videoID string) (*models.Video, error)

	// FilterExistingIDs returns the subset of the given IDs already persisted.
	FilterExistingIDs(ctx context.Context, videoIDs []string) (map[string]bool, error)

	// GetVideosByChannelID retrieves videos for a channel, newest first.
	GetVideosByChannelID(ctx context.Context, channelID string, limit int) ([]*models.Video, error)

	// GetActiveTrackingSet retrieves all videos still in the tracking rotation.
	GetActiveTrackingSet(ctx context.Context) ([]*models.Video, error)

	// CountActiveTracking counts the videos in the tracking rotation.
	CountActiveTracking(ctx context.Context) (int64, error)

	// GetDueForTracking retrieves videos in the rotation whose next poll
	// time has arrived, oldest due first.
	GetDueForTracking(ctx context.Context, now time.Time, limit int) ([]*models.Video, error)

	// UpdateTrackingState persists a tracking status transition and the
	// next scheduled poll, nil for terminal states.
	UpdateTrackingState(ctx context.Context, videoID, status string, nextPollAt *time.Time) error

	// UpdateVisibilityFlags refreshes the comment/like presence indicators
	// observed during tracking polls.
	UpdateVisibilityFlags(ctx context.Context, videoID string, commentsDisabled, likesHidden bool) error
}

type videoRepository struct {
	pool *pgxpool.Pool
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(pool *pgxpool.Pool) VideoRepository {
	return &videoRepository{pool: pool}
}

const videoColumns = `video_id, channel_id, title, description, published_at, duration_seconds, duration_raw,
	duration_degraded, content_type, category_id, tags, comments_disabled, likes_hidden,
	tracking_status, next_poll_at, first_seen_at, created_at, updated_at`

func (r *videoRepository) CreateVideo(ctx context.Context, video *models.Video) (bool, error) {
	query := `
		INSERT INTO videos (video_id, channel_id, title, description, published_at, duration_seconds, duration_raw,
			duration_degraded, content_type, category_id, tags, comments_disabled, likes_hidden,
			tracking_status, next_poll_at, first_seen_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (video_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		video.VideoID,
		video.ChannelID,
		video.Title,
		video.Description,
		video.PublishedAt,
		video.DurationSeconds,
		video.DurationRaw,
		video.DurationDegraded,
		video.ContentType,
		video.CategoryID,
		video.Tags,
		video.CommentsDisabled,
		video.LikesHidden,
		video.TrackingStatus,
		video.NextPollAt,
		video.FirstSeenAt,
		video.CreatedAt,
		video.UpdatedAt,
	)
	if err != nil {
		return false, db.WrapError(err, "create video")
	}

	return tag.RowsAffected() == 1, nil
}

func (r *videoRepository) GetVideoByID(ctx context.Context, videoID string) (*models.Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM videos
		WHERE video_id = $1
	`

	video := &models.Video{}
	err := r.pool.QueryRow(ctx, query, videoID).Scan(
		&video.VideoID,
		&video.ChannelID,
		&video.Title,
		&video.Description,
		&video.PublishedAt,
		&video.DurationSeconds,
		&video.DurationRaw,
		&video.DurationDegraded,
		&video.ContentType,
		&video.CategoryID,
		&video.Tags,
		&video.CommentsDisabled,
		&video.LikesHidden,
		&video.TrackingStatus,
		&video.NextPollAt,
		&video.FirstSeenAt,
		&video.CreatedAt,
		&video.UpdatedAt,
	)

	if err != nil {
		return nil, db.WrapError(err, "get video by id")
	}

	return video, nil
}

func (r *videoRepository) FilterExistingIDs(ctx context.Context, videoIDs []string) (map[string]bool, error) {
	if len(videoIDs) == 0 {
		return map[string]bool{}, nil
	}

	query := `SELECT video_id FROM videos WHERE video_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, videoIDs)
	if err != nil {
		return nil, db.WrapError(err, "filter existing video ids")
	}
	defer rows.Close()

	existing := make(map[string]bool, len(videoIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan video id: %w", err)
		}
		existing[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video ids: %w", err)
	}

	return existing, nil
}

func (r *videoRepository) GetVideosByChannelID(ctx context.Context, channelID string, limit int) ([]*models.Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM videos
		WHERE channel_id = $1
		ORDER BY published_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, channelID, limit)
	if err != nil {
		return nil, db.WrapError(err, "get videos by channel id")
	}
	defer rows.Close()

	return scanVideos(rows)
}

func (r *videoRepository) GetActiveTrackingSet(ctx context.Context) ([]*models.Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM videos
		WHERE tracking_status IN ($1, $2)
		ORDER BY published_at DESC
	`

	rows, err := r.pool.Query(ctx, query, models.TrackingDiscovered, models.TrackingActive)
	if err != nil {
		return nil, db.WrapError(err, "get active tracking set")
	}
	defer rows.Close()

	return scanVideos(rows)
}

func (r *videoRepository) CountActiveTracking(ctx context.Context) (int64, error) {
	query := `
		SELECT count(*)
		FROM videos
		WHERE tracking_status IN ($1, $2)
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, models.TrackingDiscovered, models.TrackingActive).Scan(&count)
	if err != nil {
		return 0, db.WrapError(err, "count active tracking")
	}

	return count, nil
}

func (r *videoRepository) GetDueForTracking(ctx context.Context, now time.Time, limit int) ([]*models.Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM videos
		WHERE tracking_status IN ($1, $2)
		  AND (next_poll_at IS NULL OR next_poll_at <= $3)
		ORDER BY next_poll_at ASC NULLS FIRST
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, models.TrackingDiscovered, models.TrackingActive, now, limit)
	if err != nil {
		return nil, db.WrapError(err, "get due for tracking")
	}
	defer rows.Close()

	return scanVideos(rows)
}

func (r *videoRepository) UpdateTrackingState(ctx context.Context, videoID, status string, nextPollAt *time.Time) error {
	query := `
		UPDATE videos
		SET tracking_status = $2,
		    next_poll_at = $3,
		    updated_at = now()
		WHERE video_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, videoID, status, nextPollAt)
	if err != nil {
		return db.WrapError(err, "update tracking state")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "update tracking state")
	}

	return nil
}

func (r *videoRepository) UpdateVisibilityFlags(ctx context.Context, videoID string, commentsDisabled, likesHidden bool) error {
	query := `
		UPDATE videos
		SET comments_disabled = $2,
		    likes_hidden = $3,
		    updated_at = now()
		WHERE video_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, videoID, commentsDisabled, likesHidden)
	if err != nil {
		return db.WrapError(err, "update visibility flags")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "update visibility flags")
	}

	return nil
}

// Helper function to scan multiple videos from query results
func scanVideos(rows pgx.Rows) ([]*models.Video, error) {
	var videos []*models.Video

	for rows.Next() {
		video := &models.Video{}
		err := rows.Scan(
			&video.VideoID,
			&video.ChannelID,
			&video.Title,
			&video.Description,
			&video.PublishedAt,
			&video.DurationSeconds,
			&video.DurationRaw,
			&video.DurationDegraded,
			&video.ContentType,
			&video.CategoryID,
			&video.Tags,
			&video.CommentsDisabled,
			&video.LikesHidden,
			&video.TrackingStatus,
			&video.NextPollAt,
			&video.FirstSeenAt,
			&video.CreatedAt,
			&video.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}
