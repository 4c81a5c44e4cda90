package repository

import (
	"context"
	"testing"
	"time"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRepository_CreateJob(t *testing.T) {
	td := testutil.SetupTestDatabase(t)
	defer td.Cleanup(t)

	jobRepo := NewJobRepository(td.Pool)
	ctx := context.Background()

	t.Run("creates running job", func(t *testing.T) {
		td.TruncateTables(t)

		job := models.NewCollectionJob(models.JobTypeHarvest)
		err := jobRepo.CreateJob(ctx, job)
		require.NoError(t, err)

		retrieved, err := jobRepo.GetJobByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobTypeHarvest, retrieved.JobType)
		assert.Equal(t, models.JobStatusRunning, retrieved.Status)
		assert.Nil(t, retrieved.FinishedAt)
		assert.Equal(t, job.StartedAt.Unix(), retrieved.StartedAt.Unix())
	})

	t.Run("returns error for non-existent job", func(t *testing.T) {
		td.TruncateTables(t)

		_, err := jobRepo.GetJobByID(ctx, uuid.New())
		require.Error(t, err)
		assert.True(t, db.IsNotFound(err))
	})
}

func TestJobRepository_FinalizeJob(t *testing.T) {
	td := testutil.SetupTestDatabase(t)
	defer td.Cleanup(t)

	jobRepo := NewJobRepository(td.Pool)
	ctx := context.Background()

	t.Run("persists success summary", func(t *testing.T) {
		td.TruncateTables(t)

		job := models.NewCollectionJob(models.JobTypeTracking)
		require.NoError(t, jobRepo.CreateJob(ctx, job))

		job.Processed = 48
		job.Skipped = 2
		job.QuotaUnits = 12
		job.Finish(time.Now())

		err := jobRepo.FinalizeJob(ctx, job)
		require.NoError(t, err)

		retrieved, err := jobRepo.GetJobByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusSucceeded, retrieved.Status)
		assert.Equal(t, 48, retrieved.Processed)
		assert.Equal(t, 2, retrieved.Skipped)
		assert.Equal(t, 0, retrieved.Errored)
		assert.Equal(t, 12, retrieved.QuotaUnits)
		require.NotNil(t, retrieved.FinishedAt)
	})

	t.Run("derives partial status from mixed outcome", func(t *testing.T) {
		td.TruncateTables(t)

		job := models.NewCollectionJob(models.JobTypeHarvest)
		require.NoError(t, jobRepo.CreateJob(ctx, job))

		job.Processed = 30
		job.Errored = 5
		job.Finish(time.Now())
		require.Equal(t, models.JobStatusPartial, job.Status)

		err := jobRepo.FinalizeJob(ctx, job)
		require.NoError(t, err)

		retrieved, err := jobRepo.GetJobByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusPartial, retrieved.Status)
	})

	t.Run("derives failed status when nothing succeeded", func(t *testing.T) {
		td.TruncateTables(t)

		job := models.NewCollectionJob(models.JobTypeDiscovery)
		require.NoError(t, jobRepo.CreateJob(ctx, job))

		job.Errored = 3
		job.Finish(time.Now())
		require.Equal(t, models.JobStatusFailed, job.Status)

		err := jobRepo.FinalizeJob(ctx, job)
		require.NoError(t, err)

		retrieved, err := jobRepo.GetJobByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusFailed, retrieved.Status)
	})

	t.Run("returns not found for unknown job", func(t *testing.T) {
		td.TruncateTables(t)

		job := models.NewCollectionJob(models.JobTypeTracking)
		job.Finish(time.Now())

		err := jobRepo.FinalizeJob(ctx, job)
		require.Error(t, err)
		assert.True(t, db.IsNotFound(err))
	})
}

func TestJobRepository_AddCredentialUsage(t *testing.T) {
	td := testutil.SetupTestDatabase(t)
	defer td.Cleanup(t)

	jobRepo := NewJobRepository(td.Pool)
	ctx := context.Background()

	t.Run("records per-credential units", func(t *testing.T) {
		td.TruncateTables(t)

		job := createTestJob(t, td.Pool)

		err := jobRepo.AddCredentialUsage(ctx, []*models.CredentialUsage{
			{JobID: job.ID, CredentialID: "key-a", Units: 40},
			{JobID: job.ID, CredentialID: "key-b", Units: 12},
		})
		require.NoError(t, err)

		usage, err := jobRepo.GetCredentialUsage(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, usage, 2)
		assert.Equal(t, "key-a", usage[0].CredentialID)
		assert.Equal(t, 40, usage[0].Units)
		assert.Equal(t, "key-b", usage[1].CredentialID)
		assert.Equal(t, 12, usage[1].Units)
	})

	t.Run("replaces units on repeated report", func(t *testing.T) {
		td.TruncateTables(t)

		job := createTestJob(t, td.Pool)

		err := jobRepo.AddCredentialUsage(ctx, []*models.CredentialUsage{
			{JobID: job.ID, CredentialID: "key-a", Units: 10},
		})
		require.NoError(t, err)

		err = jobRepo.AddCredentialUsage(ctx, []*models.CredentialUsage{
			{JobID: job.ID, CredentialID: "key-a", Units: 25},
		})
		require.NoError(t, err)

		usage, err := jobRepo.GetCredentialUsage(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, usage, 1)
		assert.Equal(t, 25, usage[0].Units)
	})

	t.Run("rejects usage for unknown job", func(t *testing.T) {
		td.TruncateTables(t)

		err := jobRepo.AddCredentialUsage(ctx, []*models.CredentialUsage{
			{JobID: uuid.New(), CredentialID: "key-a", Units: 5},
		})
		require.Error(t, err)
		assert.True(t, db.IsForeignKeyViolation(err))
	})
}

func TestJobRepository_ListRecentJobs(t *testing.T) {
	td := testutil.SetupTestDatabase(t)
	defer td.Cleanup(t)

	jobRepo := NewJobRepository(td.Pool)
	ctx := context.Background()

	t.Run("orders newest first", func(t *testing.T) {
		td.TruncateTables(t)

		first := models.NewCollectionJob(models.JobTypeDiscovery)
		first.StartedAt = time.Now().Add(-2 * time.Hour)
		require.NoError(t, jobRepo.CreateJob(ctx, first))

		second := models.NewCollectionJob(models.JobTypeTracking)
		second.StartedAt = time.Now().Add(-1 * time.Hour)
		require.NoError(t, jobRepo.CreateJob(ctx, second))

		third := models.NewCollectionJob(models.JobTypeHarvest)
		require.NoError(t, jobRepo.CreateJob(ctx, third))

		jobs, err := jobRepo.ListRecentJobs(ctx, 2)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, third.ID, jobs[0].ID)
		assert.Equal(t, second.ID, jobs[1].ID)
	})
}
