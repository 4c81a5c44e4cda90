package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/metrics"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/retry"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/service"
)

// finalizeTimeout bounds the bookkeeping writes after a pass, which must
// complete even when the run context was cancelled mid-pass.
const finalizeTimeout = 10 * time.Second

// jobStore is the slice of the job repository the runner writes.
type jobStore interface {
	CreateJob(ctx context.Context, job *models.CollectionJob) error
	FinalizeJob(ctx context.Context, job *models.CollectionJob) error
	AddCredentialUsage(ctx context.Context, usage []*models.CredentialUsage) error
}

// trackingCounter feeds the active-tracking gauge after each pass.
type trackingCounter interface {
	CountActiveTracking(ctx context.Context) (int64, error)
}

// summaryBroker publishes finished run summaries to the message broker.
type summaryBroker interface {
	PublishSummary(ctx context.Context, summary *service.JobSummary) error
}

// runFn is the uniform entry point shared by the discovery, harvest and
// tracking passes.
type runFn func(ctx context.Context, job *models.CollectionJob, usage *quota.Usage, tick time.Time) error

// jobRunner brackets every scheduled pass with its run summary: a job row is
// created before the pass starts and finalized with counters, unit spend and
// outcome once it returns.
type jobRunner struct {
	jobs    jobStore
	videos  trackingCounter
	metrics *metrics.Collectors
	broker  summaryBroker
	log     *zap.Logger
}

func (r *jobRunner) run(ctx context.Context, jobType string, tick time.Time, fn runFn) {
	job := models.NewCollectionJob(jobType)
	log := r.log.With(zap.String("job_type", jobType), zap.String("job_id", job.ID.String()))

	if err := r.jobs.CreateJob(ctx, job); err != nil {
		log.Error("Recording job start failed, run skipped", zap.Error(err))
		return
	}

	usage := quota.NewUsage()
	runErr := fn(ctx, job, usage, tick)

	job.QuotaUnits = int(usage.Total())
	now := time.Now()
	switch {
	case runErr == nil:
		job.Finish(now)
	case quota.IsExhausted(runErr) || retry.IsQuotaSignal(runErr):
		job.MarkPartial(now)
	default:
		job.MarkFailed(now)
		log.Error("Run aborted", zap.Error(runErr))
	}

	// Finalization runs on a detached context so a shutdown that cancelled
	// the pass still gets its summary persisted.
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err := r.jobs.FinalizeJob(finalizeCtx, job); err != nil {
		log.Error("Finalizing job failed", zap.Error(err))
	}

	perCredential := usage.PerCredential()
	r.recordUsage(finalizeCtx, log, job, perCredential)
	r.observe(finalizeCtx, job)

	if r.broker != nil {
		if err := r.broker.PublishSummary(finalizeCtx, service.NewJobSummary(job, perCredential)); err != nil {
			log.Warn("Publishing job summary failed", zap.Error(err))
		}
	}

	log.Info("Run finished",
		zap.String("status", job.Status),
		zap.Int("processed", job.Processed),
		zap.Int("skipped", job.Skipped),
		zap.Int("errored", job.Errored),
		zap.Int("quota_units", job.QuotaUnits),
	)
}

func (r *jobRunner) recordUsage(ctx context.Context, log *zap.Logger, job *models.CollectionJob, perCredential map[string]int64) {
	if len(perCredential) == 0 {
		return
	}

	records := make([]*models.CredentialUsage, 0, len(perCredential))
	for credentialID, units := range perCredential {
		records = append(records, &models.CredentialUsage{
			JobID:        job.ID,
			CredentialID: credentialID,
			Units:        int(units),
		})
		r.metrics.QuotaUnitsReserved.WithLabelValues(credentialID).Add(float64(units))
	}

	if err := r.jobs.AddCredentialUsage(ctx, records); err != nil {
		log.Error("Recording credential usage failed", zap.Error(err))
	}
}

func (r *jobRunner) observe(ctx context.Context, job *models.CollectionJob) {
	r.metrics.JobRuns.WithLabelValues(job.JobType, job.Status).Inc()
	if job.FinishedAt != nil {
		r.metrics.JobDuration.WithLabelValues(job.JobType).Observe(job.FinishedAt.Sub(job.StartedAt).Seconds())
	}
	r.metrics.RecordsProcessed.WithLabelValues(job.JobType, "processed").Add(float64(job.Processed))
	r.metrics.RecordsProcessed.WithLabelValues(job.JobType, "skipped").Add(float64(job.Skipped))
	r.metrics.RecordsProcessed.WithLabelValues(job.JobType, "errored").Add(float64(job.Errored))

	if active, err := r.videos.CountActiveTracking(ctx); err == nil {
		r.metrics.ActiveTracking.Set(float64(active))
	}
}
