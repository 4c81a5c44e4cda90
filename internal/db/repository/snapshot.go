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

// SnapshotRepository defines operations for the append-only snapshot store.
type SnapshotRepository interface {
	// AppendSnapshot inserts an observation. A snapshot already recorded
	// for the same (video, observed_at) key is skipped, which keeps
	// concurrent or re-run polls from double-writing a tick. Returns true
	// when a row was inserted.
	AppendSnapshot(ctx context.Context, snapshot *models.Snapshot) (bool, error)

	// GetSnapshotRange retrieves a video's snapshots within [from, to],
	// ordered by observation time ascending.
	GetSnapshotRange(ctx context.Context, videoID string, from, to time.Time) ([]*models.Snapshot, error)

	// GetLatestSnapshots retrieves the most recent snapshot per video for
	// the given IDs.
	GetLatestSnapshots(ctx context.Context, videoIDs []string) (map[string]*models.Snapshot, error)
}

type snapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) SnapshotRepository {
	return &snapshotRepository{pool: pool}
}

const snapshotColumns = `video_id, observed_at, view_count, like_count, comment_count, job_id, created_at`

func (r *snapshotRepository) AppendSnapshot(ctx context.Context, snapshot *models.Snapshot) (bool, error) {
	query := `
		INSERT INTO snapshots (video_id, observed_at, view_count, like_count, comment_count, job_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (video_id, observed_at) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		snapshot.VideoID,
		snapshot.ObservedAt,
		snapshot.ViewCount,
		snapshot.LikeCount,
		snapshot.CommentCount,
		snapshot.JobID,
		snapshot.CreatedAt,
	)
	if err != nil {
		return false, db.WrapError(err, "append snapshot")
	}

	return tag.RowsAffected() == 1, nil
}

func (r *snapshotRepository) GetSnapshotRange(ctx context.Context, videoID string, from, to time.Time) ([]*models.Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM snapshots
		WHERE video_id = $1
		  AND observed_at >= $2
		  AND observed_at <= $3
		ORDER BY observed_at ASC
	`

	rows, err := r.pool.Query(ctx, query, videoID, from, to)
	if err != nil {
		return nil, db.WrapError(err, "get snapshot range")
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func (r *snapshotRepository) GetLatestSnapshots(ctx context.Context, videoIDs []string) (map[string]*models.Snapshot, error) {
	if len(videoIDs) == 0 {
		return map[string]*models.Snapshot{}, nil
	}

	query := `
		SELECT DISTINCT ON (video_id) ` + snapshotColumns + `
		FROM snapshots
		WHERE video_id = ANY($1)
		ORDER BY video_id, observed_at DESC
	`

	rows, err := r.pool.Query(ctx, query, videoIDs)
	if err != nil {
		return nil, db.WrapError(err, "get latest snapshots")
	}
	defer rows.Close()

	snapshots, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*models.Snapshot, len(snapshots))
	for _, s := range snapshots {
		latest[s.VideoID] = s
	}

	return latest, nil
}

// Helper function to scan multiple snapshots from query results
func scanSnapshots(rows pgx.Rows) ([]*models.Snapshot, error) {
	var snapshots []*models.Snapshot

	for rows.Next() {
		snapshot := &models.Snapshot{}
		err := rows.Scan(
			&snapshot.VideoID,
			&snapshot.ObservedAt,
			&snapshot.ViewCount,
			&snapshot.LikeCount,
			&snapshot.CommentCount,
			&snapshot.JobID,
			&snapshot.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return snapshots, nil
}
