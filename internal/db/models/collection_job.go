package models

import (
	"time"

	"github.com/google/uuid"
)

// Job types executed by the collector scheduler.
const (
	JobTypeDiscovery = "discovery"
	JobTypeHarvest   = "harvest"
	JobTypeTracking  = "tracking"
)

// Job run outcomes. A run is partial when some records were persisted but
// others failed or quota ran out before completion.
const (
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusPartial   = "partial"
	JobStatusFailed    = "failed"
)

// CollectionJob is the run summary for a single scheduled collection pass.
type CollectionJob struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	JobType    string     `db:"job_type" json:"job_type"`
	Status     string     `db:"status" json:"status"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Processed  int        `db:"processed" json:"processed"`
	Skipped    int        `db:"skipped" json:"skipped"`
	Errored    int        `db:"errored" json:"errored"`
	QuotaUnits int        `db:"quota_units" json:"quota_units"`
}

// CredentialUsage records how many quota units a job run reserved against
// one credential.
type CredentialUsage struct {
	JobID        uuid.UUID `db:"job_id" json:"job_id"`
	CredentialID string    `db:"credential_id" json:"credential_id"`
	Units        int       `db:"units" json:"units"`
}

// NewCollectionJob starts a run summary for the given job type.
func NewCollectionJob(jobType string) *CollectionJob {
	return &CollectionJob{
		ID:        uuid.New(),
		JobType:   jobType,
		Status:    JobStatusRunning,
		StartedAt: time.Now(),
	}
}

// Finish closes the run with the outcome derived from its counters: failed
// when nothing was processed and errors occurred, partial when work
// completed alongside errors, succeeded otherwise.
func (j *CollectionJob) Finish(at time.Time) {
	j.FinishedAt = &at
	switch {
	case j.Errored > 0 && j.Processed == 0:
		j.Status = JobStatusFailed
	case j.Errored > 0:
		j.Status = JobStatusPartial
	default:
		j.Status = JobStatusSucceeded
	}
}

// MarkPartial forces a partial outcome regardless of counters, used when a
// run stops early on quota exhaustion with work remaining.
func (j *CollectionJob) MarkPartial(at time.Time) {
	j.FinishedAt = &at
	j.Status = JobStatusPartial
}

// MarkFailed forces a failed outcome, used when a run aborts before any
// unit of work could complete.
func (j *CollectionJob) MarkFailed(at time.Time) {
	j.FinishedAt = &at
	j.Status = JobStatusFailed
}
