// Package harvest runs the acquisition passes: discovery turns seed lists
// and searches into scored channels, and harvesting turns verified channels
// into persisted video records ready for longitudinal tracking.
package harvest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/ingest"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/retry"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/youtube"
)

// MetadataAPI is the slice of the YouTube client the acquisition passes
// call. *youtube.Client satisfies it.
type MetadataAPI interface {
	GetChannel(ctx context.Context, credentialID, channelID string) (*youtube.RawChannel, error)
	ListUploads(ctx context.Context, credentialID, playlistID, pageToken string) (*youtube.UploadsPage, error)
	GetVideosBatch(ctx context.Context, credentialID string, videoIDs []string) ([]*youtube.RawVideo, error)
	SearchChannels(ctx context.Context, credentialID, query, regionCode string, maxResults int64) ([]string, error)
}

// ChannelStore is the slice of the channel repository the harvester reads
// and updates.
type ChannelStore interface {
	GetVerifiedChannels(ctx context.Context) ([]*models.Channel, error)
	MarkChannelHarvested(ctx context.Context, channelID string, at time.Time) error
}

// VideoStore is the slice of the video repository the harvester writes.
type VideoStore interface {
	FilterExistingIDs(ctx context.Context, videoIDs []string) (map[string]bool, error)
	CreateVideo(ctx context.Context, video *models.Video) (bool, error)
}

// Config bounds one harvest pass.
type Config struct {
	// Lookback is how far into a channel's history uploads are enumerated.
	Lookback time.Duration
	// TrackingWindow decides whether a newly stored video enters active
	// tracking or arrives already retired.
	TrackingWindow time.Duration
	// BatchSize is the number of video IDs per detail lookup, at most
	// youtube.MaxBatchSize.
	BatchSize int
	// MaxPages caps uploads pagination per channel per pass.
	MaxPages int
	// Workers is the number of channels harvested concurrently.
	Workers int
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

// pauseFlag latches the first quota-exhaustion error a worker hits, so the
// feeder stops handing out channels while in-flight work drains.
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

// Harvester walks verified channels' uploads and persists the videos found
// within the lookback window.
type Harvester struct {
	api      MetadataAPI
	pool     *quota.Pool
	retrier  *retry.Controller
	channels ChannelStore
	videos   VideoStore
	cfg      Config
	log      *zap.Logger
}

// NewHarvester builds a harvester, backfilling unusable config values.
func NewHarvester(api MetadataAPI, pool *quota.Pool, retrier *retry.Controller,
	channels ChannelStore, videos VideoStore, cfg Config, log *zap.Logger) *Harvester {
	if cfg.BatchSize <= 0 || cfg.BatchSize > youtube.MaxBatchSize {
		cfg.BatchSize = youtube.MaxBatchSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 30 * 24 * time.Hour
	}
	if cfg.TrackingWindow <= 0 {
		cfg.TrackingWindow = 30 * 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Harvester{
		api:      api,
		pool:     pool,
		retrier:  retrier,
		channels: channels,
		videos:   videos,
		cfg:      cfg,
		log:      log,
	}
}

// Run executes one harvest pass over every verified channel. It returns
// non-nil only when the pass paused on quota exhaustion; per-record failures
// are counted on the job and logged. Already-persisted work survives a
// pause, so the next pass resumes without re-spending units on stored
// videos.
func (h *Harvester) Run(ctx context.Context, job *models.CollectionJob, usage *quota.Usage, tick time.Time) error {
	channels, err := h.channels.GetVerifiedChannels(ctx)
	if err != nil {
		return fmt.Errorf("load verified channels: %w", err)
	}

	log := h.log.With(zap.String("job_id", job.ID.String()))
	if len(channels) == 0 {
		log.Info("No verified channels to harvest")
		return nil
	}
	log.Info("Harvest pass starting",
		zap.Int("channels", len(channels)),
		zap.Int("workers", h.cfg.Workers),
	)

	var (
		counts tally
		pause  pauseFlag
		wg     sync.WaitGroup
	)
	work := make(chan *models.Channel)

	for i := 0; i < h.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for channel := range work {
				if ctx.Err() != nil || pause.get() != nil {
					continue
				}
				if err := h.harvestChannel(ctx, job, usage, &counts, channel, tick); err != nil {
					pause.set(err)
				}
			}
		}()
	}

feed:
	for _, channel := range channels {
		if pause.get() != nil {
			break
		}
		select {
		case work <- channel:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	counts.fold(job)

	if err := pause.get(); err != nil {
		log.Warn("Harvest pass paused",
			zap.Int("processed", job.Processed),
			zap.Error(err),
		)
		return err
	}

	log.Info("Harvest pass finished",
		zap.Int("processed", job.Processed),
		zap.Int("skipped", job.Skipped),
		zap.Int("errored", job.Errored),
	)
	return nil
}

// harvestChannel enumerates one channel's recent uploads and persists the
// ones not yet stored. The returned error is a pause signal; everything
// else is absorbed into the counters.
func (h *Harvester) harvestChannel(ctx context.Context, job *models.CollectionJob, usage *quota.Usage,
	counts *tally, channel *models.Channel, tick time.Time) error {
	log := h.log.With(zap.String("channel_id", channel.ChannelID))

	if channel.UploadsPlaylistID == "" {
		log.Warn("Channel has no uploads playlist")
		return nil
	}

	candidates, complete, err := h.enumerateUploads(ctx, job, usage, counts, channel, tick)
	if err != nil {
		return err
	}

	newIDs, err := h.filterNew(ctx, counts, candidates)
	if err != nil {
		log.Error("Filtering existing videos failed", zap.Error(err))
		return nil
	}

	if len(newIDs) > 0 {
		if err := h.fetchAndPersist(ctx, job, usage, counts, newIDs, tick); err != nil {
			return err
		}
	}

	if complete && ctx.Err() == nil {
		if err := h.channels.MarkChannelHarvested(ctx, channel.ChannelID, tick); err != nil {
			log.Warn("Marking channel harvested failed", zap.Error(err))
		}
	}
	return nil
}

// enumerateUploads pages through the uploads playlist until it crosses the
// lookback cut-off, exhausts the playlist, or hits the page ceiling. The
// second return reports whether enumeration covered the window; a transient
// page failure leaves the channel incomplete so the next pass retries it.
func (h *Harvester) enumerateUploads(ctx context.Context, job *models.CollectionJob, usage *quota.Usage,
	counts *tally, channel *models.Channel, tick time.Time) ([]string, bool, error) {
	cutoff := tick.Add(-h.cfg.Lookback)

	var ids []string
	pageToken := ""

	for page := 0; page < h.cfg.MaxPages; page++ {
		if ctx.Err() != nil {
			return ids, false, nil
		}

		res, err := h.pool.Reserve(youtube.CostPlaylistItemsList, job.ID)
		if err != nil {
			return ids, false, err
		}
		usage.Record(res)

		var uploads *youtube.UploadsPage
		err = h.retrier.Do(ctx, "playlistItems.list", func(callCtx context.Context) error {
			var apiErr error
			uploads, apiErr = h.api.ListUploads(callCtx, res.CredentialID, channel.UploadsPlaylistID, pageToken)
			return apiErr
		})
		if err != nil {
			if retry.IsQuotaSignal(err) {
				h.pool.MarkExhausted(res.CredentialID)
				return ids, false, err
			}
			counts.errored.Add(1)
			h.log.Warn("Uploads page fetch failed",
				zap.String("channel_id", channel.ChannelID),
				zap.Error(err),
			)
			return ids, false, nil
		}

		reachedCutoff := false
		for _, item := range uploads.Items {
			if item.PublishedAt.Before(cutoff) {
				reachedCutoff = true
				continue
			}
			ids = append(ids, item.VideoID)
		}

		if reachedCutoff || uploads.NextPageToken == "" {
			return ids, true, nil
		}
		pageToken = uploads.NextPageToken
	}

	return ids, true, nil
}

// filterNew drops IDs already persisted so detail units are never re-spent
// on stored videos. The dropped count lands in skipped.
func (h *Harvester) filterNew(ctx context.Context, counts *tally, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	existing, err := h.videos.FilterExistingIDs(ctx, candidates)
	if err != nil {
		counts.errored.Add(int64(len(candidates)))
		return nil, err
	}

	newIDs := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if existing[id] {
			counts.skipped.Add(1)
			continue
		}
		newIDs = append(newIDs, id)
	}
	return newIDs, nil
}

func (h *Harvester) fetchAndPersist(ctx context.Context, job *models.CollectionJob, usage *quota.Usage,
	counts *tally, ids []string, tick time.Time) error {
	for _, batch := range youtube.BatchVideoIDs(ids, h.cfg.BatchSize) {
		if ctx.Err() != nil {
			return nil
		}

		res, err := h.pool.Reserve(youtube.CostVideosList, job.ID)
		if err != nil {
			return err
		}
		usage.Record(res)

		var raws []*youtube.RawVideo
		err = h.retrier.Do(ctx, "videos.list", func(callCtx context.Context) error {
			var apiErr error
			raws, apiErr = h.api.GetVideosBatch(callCtx, res.CredentialID, batch)
			return apiErr
		})
		if err != nil {
			if retry.IsQuotaSignal(err) {
				h.pool.MarkExhausted(res.CredentialID)
				return err
			}
			if retry.Classify(err) == retry.KindTransient {
				counts.skipped.Add(int64(len(batch)))
			} else {
				counts.errored.Add(int64(len(batch)))
			}
			h.log.Warn("Video batch fetch failed",
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			continue
		}

		// The units for this batch are spent; persist everything it
		// returned even if the run is shutting down.
		persistCtx := context.WithoutCancel(ctx)

		returned := make(map[string]bool, len(raws))
		for _, raw := range raws {
			returned[raw.VideoID] = true
			h.persistVideo(persistCtx, counts, raw, tick)
		}
		for _, id := range batch {
			if !returned[id] {
				// Enumerated moments ago but absent from details: deleted
				// or privated in between.
				counts.errored.Add(1)
				h.log.Warn("Video missing from batch response", zap.String("video_id", id))
			}
		}
	}
	return nil
}

func (h *Harvester) persistVideo(ctx context.Context, counts *tally, raw *youtube.RawVideo, tick time.Time) {
	video, err := ingest.Normalize(raw)
	if err != nil {
		counts.errored.Add(1)
		h.log.Warn("Rejected video record",
			zap.String("video_id", raw.VideoID),
			zap.Error(err),
		)
		return
	}

	if video.TrackingExpired(tick, h.cfg.TrackingWindow) {
		video.Retire()
	} else {
		// Due immediately; the first snapshot lands on the next tracking
		// tick.
		video.Activate(tick)
	}

	inserted, err := h.videos.CreateVideo(ctx, video)
	if err != nil {
		counts.errored.Add(1)
		h.log.Error("Persisting video failed",
			zap.String("video_id", video.VideoID),
			zap.Error(err),
		)
		return
	}
	if !inserted {
		counts.skipped.Add(1)
		return
	}
	counts.processed.Add(1)
}
