package repository

import (
	"context"
	"fmt"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobRepository defines operations for collection job run summaries.
type JobRepository interface {
	// CreateJob records the start of a run.
	CreateJob(ctx context.Context, job *models.CollectionJob) error

	// FinalizeJob persists the run outcome and counters.
	FinalizeJob(ctx context.Context, job *models.CollectionJob) error

	// AddCredentialUsage records per-credential quota units reserved by a run.
	AddCredentialUsage(ctx context.Context, usage []*models.CredentialUsage) error

	// GetJobByID retrieves a run summary.
	GetJobByID(ctx context.Context, id uuid.UUID) (*models.CollectionJob, error)

	// GetCredentialUsage retrieves the per-credential units for a run.
	GetCredentialUsage(ctx context.Context, jobID uuid.UUID) ([]*models.CredentialUsage, error)

	// ListRecentJobs retrieves run summaries, newest first.
	ListRecentJobs(ctx context.Context, limit int) ([]*models.CollectionJob, error)
}

type jobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(pool *pgxpool.Pool) JobRepository {
	return &jobRepository{pool: pool}
}

const jobColumns = `id, job_type, status, started_at, finished_at, processed, skipped, errored, quota_units`

func (r *jobRepository) CreateJob(ctx context.Context, job *models.CollectionJob) error {
	query := `
		INSERT INTO collection_jobs (id, job_type, status, started_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, job.ID, job.JobType, job.Status, job.StartedAt)
	if err != nil {
		return db.WrapError(err, "create collection job")
	}

	return nil
}

func (r *jobRepository) FinalizeJob(ctx context.Context, job *models.CollectionJob) error {
	query := `
		UPDATE collection_jobs
		SET status = $2,
		    finished_at = $3,
		    processed = $4,
		    skipped = $5,
		    errored = $6,
		    quota_units = $7
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.FinishedAt,
		job.Processed,
		job.Skipped,
		job.Errored,
		job.QuotaUnits,
	)
	if err != nil {
		return db.WrapError(err, "finalize collection job")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "finalize collection job")
	}

	return nil
}

func (r *jobRepository) AddCredentialUsage(ctx context.Context, usage []*models.CredentialUsage) error {
	if len(usage) == 0 {
		return nil
	}

	query := `
		INSERT INTO job_credential_usage (job_id, credential_id, units)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id, credential_id) DO UPDATE
		SET units = EXCLUDED.units
	`

	for _, u := range usage {
		if _, err := r.pool.Exec(ctx, query, u.JobID, u.CredentialID, u.Units); err != nil {
			return db.WrapError(err, "add credential usage")
		}
	}

	return nil
}

func (r *jobRepository) GetJobByID(ctx context.Context, id uuid.UUID) (*models.CollectionJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM collection_jobs
		WHERE id = $1
	`

	job := &models.CollectionJob{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.JobType,
		&job.Status,
		&job.StartedAt,
		&job.FinishedAt,
		&job.Processed,
		&job.Skipped,
		&job.Errored,
		&job.QuotaUnits,
	)

	if err != nil {
		return nil, db.WrapError(err, "get collection job by id")
	}

	return job, nil
}

func (r *jobRepository) GetCredentialUsage(ctx context.Context, jobID uuid.UUID) ([]*models.CredentialUsage, error) {
	query := `
		SELECT job_id, credential_id, units
		FROM job_credential_usage
		WHERE job_id = $1
		ORDER BY credential_id
	`

	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, db.WrapError(err, "get credential usage")
	}
	defer rows.Close()

	var usage []*models.CredentialUsage
	for rows.Next() {
		u := &models.CredentialUsage{}
		if err := rows.Scan(&u.JobID, &u.CredentialID, &u.Units); err != nil {
			return nil, fmt.Errorf("scan credential usage: %w", err)
		}
		usage = append(usage, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credential usage: %w", err)
	}

	return usage, nil
}

func (r *jobRepository) ListRecentJobs(ctx context.Context, limit int) ([]*models.CollectionJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM collection_jobs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, db.WrapError(err, "list recent jobs")
	}
	defer rows.Close()

	var jobs []*models.CollectionJob
	for rows.Next() {
		job := &models.CollectionJob{}
		err := rows.Scan(
			&job.ID,
			&job.JobType,
			&job.Status,
			&job.StartedAt,
			&job.FinishedAt,
			&job.Processed,
			&job.Skipped,
			&job.Errored,
			&job.QuotaUnits,
		)
		if err != nil {
			return nil, fmt.Errorf("scan collection job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection jobs: %w", err)
	}

	return jobs, nil
}
