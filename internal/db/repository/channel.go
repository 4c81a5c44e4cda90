// Package repository contains the PostgreSQL persistence layer for the
// collector: channels, videos, snapshots and collection job runs.
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

// ChannelRepository defines operations for managing channels.
type ChannelRepository interface {
	// UpsertChannel creates a channel or refreshes its identity and
	// statistics. Scoring fields are managed by UpdateChannelScore.
	UpsertChannel(ctx context.Context, channel *models.Channel) error

	// GetChannelByID retrieves a single channel by ID.
	GetChannelByID(ctx context.Context, channelID string) (*models.Channel, error)

	// UpdateChannelScore persists the latest relevance scoring result.
	UpdateChannelScore(ctx context.Context, channel *models.Channel) error

	// GetChannelsByMinScore retrieves channels whose relevance score is at
	// least minScore, highest confidence first.
	GetChannelsByMinScore(ctx context.Context, minScore float64, limit int) ([]*models.Channel, error)

	// GetVerifiedChannels retrieves the channels cleared for harvesting.
	GetVerifiedChannels(ctx context.Context) ([]*models.Channel, error)

	// MarkChannelHarvested records the completion time of a harvest pass.
	MarkChannelHarvested(ctx context.Context, channelID string, at time.Time) error
}

type channelRepository struct {
	pool *pgxpool.Pool
}

// NewChannelRepository creates a new ChannelRepository.
func NewChannelRepository(pool *pgxpool.Pool) ChannelRepository {
	return &channelRepository{pool: pool}
}

const channelColumns = `channel_id, title, uploads_playlist_id, country, subscriber_count, video_count,
	relevance_score, verified, score_signals, last_scored_at, last_harvested_at, created_at, updated_at`

func (r *channelRepository) UpsertChannel(ctx context.Context, channel *models.Channel) error {
	query := `
		INSERT INTO channels (channel_id, title, uploads_playlist_id, country, subscriber_count, video_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (channel_id) DO UPDATE
		SET title = EXCLUDED.title,
		    uploads_playlist_id = EXCLUDED.uploads_playlist_id,
		    country = EXCLUDED.country,
		    subscriber_count = EXCLUDED.subscriber_count,
		    video_count = EXCLUDED.video_count,
		    updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		channel.ChannelID,
		channel.Title,
		channel.UploadsPlaylistID,
		channel.Country,
		channel.SubscriberCount,
		channel.VideoCount,
		channel.CreatedAt,
		channel.UpdatedAt,
	).Scan(
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)

	if err != nil {
		return db.WrapError(err, "upsert channel")
	}

	return nil
}

func (r *channelRepository) GetChannelByID(ctx context.Context, channelID string) (*models.Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE channel_id = $1
	`

	channel := &models.Channel{}
	err := r.pool.QueryRow(ctx, query, channelID).Scan(
		&channel.ChannelID,
		&channel.Title,
		&channel.UploadsPlaylistID,
		&channel.Country,
		&channel.SubscriberCount,
		&channel.VideoCount,
		&channel.RelevanceScore,
		&channel.Verified,
		&channel.ScoreSignals,
		&channel.LastScoredAt,
		&channel.LastHarvestedAt,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)

	if err != nil {
		return nil, db.WrapError(err, "get channel by id")
	}

	return channel, nil
}

func (r *channelRepository) UpdateChannelScore(ctx context.Context, channel *models.Channel) error {
	query := `
		UPDATE channels
		SET relevance_score = $2,
		    verified = $3,
		    score_signals = $4,
		    last_scored_at = $5,
		    updated_at = $6
		WHERE channel_id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		channel.ChannelID,
		channel.RelevanceScore,
		channel.Verified,
		channel.ScoreSignals,
		channel.LastScoredAt,
		channel.UpdatedAt,
	)
	if err != nil {
		return db.WrapError(err, "update channel score")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "update channel score")
	}

	return nil
}

func (r *channelRepository) GetChannelsByMinScore(ctx context.Context, minScore float64, limit int) ([]*models.Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE relevance_score >= $1
		ORDER BY relevance_score DESC, channel_id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, minScore, limit)
	if err != nil {
		return nil, db.WrapError(err, "get channels by min score")
	}
	defer rows.Close()

	return scanChannels(rows)
}

func (r *channelRepository) GetVerifiedChannels(ctx context.Context) ([]*models.Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE verified = TRUE
		ORDER BY relevance_score DESC, channel_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, db.WrapError(err, "get verified channels")
	}
	defer rows.Close()

	return scanChannels(rows)
}

func (r *channelRepository) MarkChannelHarvested(ctx context.Context, channelID string, at time.Time) error {
	query := `
		UPDATE channels
		SET last_harvested_at = $2,
		    updated_at = now()
		WHERE channel_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, channelID, at)
	if err != nil {
		return db.WrapError(err, "mark channel harvested")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "mark channel harvested")
	}

	return nil
}

// Helper function to scan multiple channels from query results
func scanChannels(rows pgx.Rows) ([]*models.Channel, error) {
	var channels []*models.Channel

	for rows.Next() {
		channel := &models.Channel{}
		err := rows.Scan(
			&channel.ChannelID,
			&channel.Title,
			&channel.UploadsPlaylistID,
			&channel.Country,
			&channel.SubscriberCount,
			&channel.VideoCount,
			&channel.RelevanceScore,
			&channel.Verified,
			&channel.ScoreSignals,
			&channel.LastScoredAt,
			&channel.LastHarvestedAt,
			&channel.CreatedAt,
			&channel.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, channel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	return channels, nil
}
