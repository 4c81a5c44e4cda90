// Package track maintains the longitudinal snapshot series. Videos inside
// their tracking window are polled on a cadence; every poll appends one
// immutable engagement observation keyed by (video, tick).
package track

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/retry"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/youtube"
)

// StatsAPI is the slice of the YouTube client the tracker calls.
// *youtube.Client satisfies it.
type StatsAPI interface {
	GetVideosBatch(ctx context.Context, credentialID string, videoIDs []string) ([]*youtube.RawVideo, error)
}

// TrackingStore is the slice of the video repository the tracker reads and
// advances.
type TrackingStore interface {
	GetDueForTracking(ctx context.Context, now time.Time, limit int) ([]*models.Video, error)
	UpdateTrackingState(ctx context.Context, videoID, status string, nextPollAt *time.Time) error
	UpdateVisibilityFlags(ctx context.Context, videoID string, commentsDisabled, likesHidden bool) error
}

// SnapshotStore is the slice of the snapshot repository the tracker appends
// observations to.
type SnapshotStore interface {
	AppendSnapshot(ctx context.Context, snapshot *models.Snapshot) (bool, error)
	GetLatestSnapshots(ctx context.Context, videoIDs []string) (map[string]*models.Snapshot, error)
}

// Config bounds one tracking pass.
type Config struct {
	// Window is the tracking window measured from publication; videos past
	// it retire instead of being polled.
	Window time.Duration
	// PollInterval is the cadence between snapshots for one video.
	PollInterval time.Duration
	// BatchSize is the number of video IDs per stats lookup, at most
	// youtube.MaxBatchSize.
	BatchSize int
	// Workers is the number of batches polled concurrently.
	Workers int
	// FetchLimit caps how many due videos one pass loads.
	FetchLimit int

	// OnAppend and OnDecrease observe appended snapshots and view-count
	// regressions; both are optional metric hooks.
	OnAppend   func()
	OnDecrease func()
}

// tally accumulates job counters across worker goroutines; the totals fold
// into the job once the workers are done.
type tally struct {
	processed atomic.Int64
	skipped   atomic.Int64
	errored   atomic.Int64
}

func (t *tally) fold(job *models.CollectionJob) {
	job.Processed += int(t.processed.Load())
	job.Skipped += int(t.skipped.Load())
	job.Errored += int(t.errored.Load())
}

// pauseFlag latches the first quota-exhaustion error so no further batches
// start while in-flight ones drain.
type pauseFlag struct {
	mu  sync.Mutex
	err error
}

func (p *pauseFlag) set(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
}

func (p *pauseFlag) get() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Tracker polls the active-tracking set and appends snapshots.
type Tracker struct {
	api     StatsAPI
	pool    *quota.Pool
	retrier *retry.Controller
	videos  TrackingStore
	snaps   SnapshotStore
	cfg     Config
	log     *zap.Logger
}

// NewTracker builds a tracker, backfilling unusable config values.
func NewTracker(api StatsAPI, pool *quota.Pool, retrier *retry.Controller,
	videos TrackingStore, snaps SnapshotStore, cfg Config, log *zap.Logger) *Tracker {
	if cfg.BatchSize <= 0 || cfg.BatchSize > youtube.MaxBatchSize {
		cfg.BatchSize = youtube.MaxBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = 30 * 24 * time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 6 * time.Hour
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 5000
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Tracker{
		api:     api,
		pool:    pool,
		retrier: retrier,
		videos:  videos,
		snaps:   snaps,
		cfg:     cfg,
		log:     log,
	}
}

// Run executes one tracking pass over the videos due for a poll. It returns
// non-nil only when the pass paused on quota exhaustion; per-video failures
// are counted on the job. A video whose snapshot could not be persisted keeps
// its old next_poll_at, so the next pass picks it up again.
func (t *Tracker) Run(ctx context.Context, job *models.CollectionJob, usage *quota.Usage, tick time.Time) error {
	due, err := t.videos.GetDueForTracking(ctx, tick, t.cfg.FetchLimit)
	if err != nil {
		return fmt.Errorf("load due videos: %w", err)
	}

	log := t.log.With(zap.String("job_id", job.ID.String()))
	if len(due) == 0 {
		log.Info("No videos due for tracking")
		return nil
	}

	var counts tally

	// Videos that aged out since their last poll retire without spending
	// any units on them.
	polling := make([]*models.Video, 0, len(due))
	for _, video := range due {
		if !video.TrackingExpired(tick, t.cfg.Window) {
			polling = append(polling, video)
			continue
		}
		if err := t.videos.UpdateTrackingState(ctx, video.VideoID, models.TrackingRetired, nil); err != nil {
			counts.errored.Add(1)
			log.Error("Retiring aged-out video failed",
				zap.String("video_id", video.VideoID),
				zap.Error(err),
			)
			continue
		}
		counts.skipped.Add(1)
		log.Info("Video aged out of tracking window", zap.String("video_id", video.VideoID))
	}

	log.Info("Tracking pass starting",
		zap.Int("due", len(due)),
		zap.Int("polling", len(polling)),
		zap.Int("workers", t.cfg.Workers),
	)

	var (
		pause pauseFlag
		wg    sync.WaitGroup
	)
	work := make(chan []*models.Video)

	for i := 0; i < t.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range work {
				if ctx.Err() != nil || pause.get() != nil {
					continue
				}
				if err := t.pollBatch(ctx, job, usage, &counts, batch, tick); err != nil {
					pause.set(err)
				}
			}
		}()
	}

feed:
	for _, batch := range batchVideos(polling, t.cfg.BatchSize) {
		if pause.get() != nil {
			break
		}
		select {
		case work <- batch:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	counts.fold(job)

	if err := pause.get(); err != nil {
		log.Warn("Tracking pass paused",
			zap.Int("processed", job.Processed),
			zap.Error(err),
		)
		return err
	}

	log.Info("Tracking pass finished",
		zap.Int("processed", job.Processed),
		zap.Int("skipped", job.Skipped),
		zap.Int("errored", job.Errored),
	)
	return nil
}

// pollBatch fetches current stats for one batch and appends an observation
// per video. The returned error is a pause signal; everything else lands in
// the counters.
func (t *Tracker) pollBatch(ctx context.Context, job *models.CollectionJob, usage *quota.Usage,
	counts *tally, batch []*models.Video, tick time.Time) error {
	res, err := t.pool.Reserve(youtube.CostVideosList, job.ID)
	if err != nil {
		return err
	}
	usage.Record(res)

	ids := make([]string, len(batch))
	byID := make(map[string]*models.Video, len(batch))
	for i, video := range batch {
		ids[i] = video.VideoID
		byID[video.VideoID] = video
	}

	var raws []*youtube.RawVideo
	err = t.retrier.Do(ctx, "videos.list", func(callCtx context.Context) error {
		var apiErr error
		raws, apiErr = t.api.GetVideosBatch(callCtx, res.CredentialID, ids)
		return apiErr
	})
	if err != nil {
		if retry.IsQuotaSignal(err) {
			t.pool.MarkExhausted(res.CredentialID)
			return err
		}
		if retry.Classify(err) == retry.KindTransient {
			counts.skipped.Add(int64(len(batch)))
		} else {
			counts.errored.Add(int64(len(batch)))
		}
		t.log.Warn("Stats batch fetch failed",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		return nil
	}

	// The units for this batch are spent; persist every observation it
	// returned even if the run is shutting down.
	persistCtx := context.WithoutCancel(ctx)

	previous, err := t.snaps.GetLatestSnapshots(persistCtx, ids)
	if err != nil {
		// The monotonicity check is advisory; append without it.
		t.log.Warn("Loading previous snapshots failed", zap.Error(err))
		previous = nil
	}

	returned := make(map[string]bool, len(raws))
	for _, raw := range raws {
		returned[raw.VideoID] = true
		t.recordObservation(persistCtx, counts, byID[raw.VideoID], raw, previous[raw.VideoID], job.ID, tick)
	}

	for _, video := range batch {
		if returned[video.VideoID] {
			continue
		}
		// Absent from its own stats lookup: deleted or privated. Terminal,
		// never retried.
		counts.errored.Add(1)
		if err := t.videos.UpdateTrackingState(persistCtx, video.VideoID, models.TrackingRetiredError, nil); err != nil {
			t.log.Error("Retiring unreachable video failed",
				zap.String("video_id", video.VideoID),
				zap.Error(err),
			)
			continue
		}
		t.log.Warn("Video unreachable, retired with error", zap.String("video_id", video.VideoID))
	}
	return nil
}

// recordObservation appends one snapshot and advances the video's schedule.
// A persistence failure leaves next_poll_at untouched so the video is due
// again on the next pass.
func (t *Tracker) recordObservation(ctx context.Context, counts *tally, video *models.Video,
	raw *youtube.RawVideo, prev *models.Snapshot, jobID uuid.UUID, tick time.Time) {
	if raw.ViewCount == nil {
		// Stats withheld for this video. Skip the observation but keep the
		// video in rotation.
		counts.skipped.Add(1)
		t.log.Warn("View count missing from stats response", zap.String("video_id", video.VideoID))
		t.advance(ctx, counts, video, tick)
		return
	}

	snapshot := models.NewSnapshot(video.VideoID, tick, *raw.ViewCount, raw.LikeCount, raw.CommentCount, jobID)

	if prev != nil && snapshot.ViewCount < prev.ViewCount {
		if t.cfg.OnDecrease != nil {
			t.cfg.OnDecrease()
		}
		t.log.Warn("View count decreased",
			zap.String("video_id", video.VideoID),
			zap.Int64("previous", prev.ViewCount),
			zap.Int64("current", snapshot.ViewCount),
			zap.Time("previous_observed_at", prev.ObservedAt),
		)
	}

	inserted, err := t.snaps.AppendSnapshot(ctx, snapshot)
	if err != nil {
		counts.errored.Add(1)
		t.log.Error("Appending snapshot failed",
			zap.String("video_id", video.VideoID),
			zap.Error(err),
		)
		return
	}
	if inserted {
		counts.processed.Add(1)
		if t.cfg.OnAppend != nil {
			t.cfg.OnAppend()
		}
	} else {
		// Another ticker already observed this video at this tick.
		counts.skipped.Add(1)
	}

	commentsDisabled := raw.CommentCount == nil
	likesHidden := raw.LikeCount == nil
	if commentsDisabled != video.CommentsDisabled || likesHidden != video.LikesHidden {
		if err := t.videos.UpdateVisibilityFlags(ctx, video.VideoID, commentsDisabled, likesHidden); err != nil {
			t.log.Warn("Updating visibility flags failed",
				zap.String("video_id", video.VideoID),
				zap.Error(err),
			)
		}
	}

	t.advance(ctx, counts, video, tick)
}

// advance schedules the next poll; it also promotes freshly discovered
// videos to active.
func (t *Tracker) advance(ctx context.Context, counts *tally, video *models.Video, tick time.Time) {
	next := tick.Add(t.cfg.PollInterval)
	if err := t.videos.UpdateTrackingState(ctx, video.VideoID, models.TrackingActive, &next); err != nil {
		counts.errored.Add(1)
		t.log.Error("Advancing poll schedule failed",
			zap.String("video_id", video.VideoID),
			zap.Error(err),
		)
	}
}

// batchVideos chunks the polling set into stats-lookup batches.
func batchVideos(videos []*models.Video, size int) [][]*models.Video {
	if size <= 0 || size > youtube.MaxBatchSize {
		size = youtube.MaxBatchSize
	}

	var batches [][]*models.Video
	for start := 0; start < len(videos); start += size {
		end := start + size
		if end > len(videos) {
			end = len(videos)
		}
		batches = append(batches, videos[start:end])
	}
	return batches
}
