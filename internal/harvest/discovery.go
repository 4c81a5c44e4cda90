package harvest

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/classify"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/retry"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/youtube"
)

// DirectoryStore is the slice of the channel repository discovery writes.
type DirectoryStore interface {
	UpsertChannel(ctx context.Context, channel *models.Channel) error
	UpdateChannelScore(ctx context.Context, channel *models.Channel) error
}

// DiscoveryConfig bounds one discovery pass.
type DiscoveryConfig struct {
	// SeedChannels are curated channel IDs evaluated on every pass.
	SeedChannels []string
	// SeedQueries are search terms that expand the candidate set. Each
	// query costs youtube.CostSearchList units, so the list stays short.
	SeedQueries []string
	// Region scopes searches, ISO 3166-1 alpha-2.
	Region             string
	MaxResultsPerQuery int
}

// Discovery finds candidate channels, scores them for regional relevance
// and persists the results. Verified channels feed the harvester.
type Discovery struct {
	api      MetadataAPI
	pool     *quota.Pool
	retrier  *retry.Controller
	scorer   *classify.Scorer
	channels DirectoryStore
	cfg      DiscoveryConfig
	log      *zap.Logger
	seeds    map[string]bool
}

// NewDiscovery builds a discovery pass runner.
func NewDiscovery(api MetadataAPI, pool *quota.Pool, retrier *retry.Controller,
	scorer *classify.Scorer, channels DirectoryStore, cfg DiscoveryConfig, log *zap.Logger) *Discovery {
	if cfg.MaxResultsPerQuery <= 0 {
		cfg.MaxResultsPerQuery = 25
	}
	if log == nil {
		log = zap.NewNop()
	}

	seeds := make(map[string]bool, len(cfg.SeedChannels))
	for _, id := range cfg.SeedChannels {
		seeds[id] = true
	}

	return &Discovery{
		api:      api,
		pool:     pool,
		retrier:  retrier,
		scorer:   scorer,
		channels: channels,
		cfg:      cfg,
		log:      log,
		seeds:    seeds,
	}
}

// Run executes one discovery pass: searches expand the seed list into a
// candidate set, then every candidate is fetched, scored and persisted.
// Re-scoring an already-known channel overwrites its previous score. The
// returned error is non-nil only when the pass paused on quota exhaustion.
func (d *Discovery) Run(ctx context.Context, job *models.CollectionJob, usage *quota.Usage, tick time.Time) error {
	log := d.log.With(zap.String("job_id", job.ID.String()))

	candidates := make(map[string]bool, len(d.cfg.SeedChannels))
	for _, id := range d.cfg.SeedChannels {
		candidates[id] = true
	}

	var counts tally
	var pauseErr error

	for _, query := range d.cfg.SeedQueries {
		if ctx.Err() != nil {
			break
		}

		res, err := d.pool.Reserve(youtube.CostSearchList, job.ID)
		if err != nil {
			pauseErr = err
			break
		}
		usage.Record(res)

		var ids []string
		err = d.retrier.Do(ctx, "search.list", func(callCtx context.Context) error {
			var apiErr error
			ids, apiErr = d.api.SearchChannels(callCtx, res.CredentialID, query, d.cfg.Region, int64(d.cfg.MaxResultsPerQuery))
			return apiErr
		})
		if err != nil {
			if retry.IsQuotaSignal(err) {
				d.pool.MarkExhausted(res.CredentialID)
				pauseErr = err
				break
			}
			counts.errored.Add(1)
			log.Warn("Channel search failed", zap.String("query", query), zap.Error(err))
			continue
		}

		for _, id := range ids {
			candidates[id] = true
		}
	}

	// Sorted order keeps passes deterministic, so a pause resumes with the
	// same prefix already scored.
	ordered := make([]string, 0, len(candidates))
	for id := range candidates {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	log.Info("Discovery pass starting",
		zap.Int("seeds", len(d.cfg.SeedChannels)),
		zap.Int("candidates", len(ordered)),
	)

	for _, id := range ordered {
		if pauseErr != nil || ctx.Err() != nil {
			break
		}
		if err := d.evaluateChannel(ctx, job, usage, &counts, id); err != nil {
			pauseErr = err
		}
	}

	counts.fold(job)

	if pauseErr != nil {
		log.Warn("Discovery pass paused",
			zap.Int("processed", job.Processed),
			zap.Error(pauseErr),
		)
		return pauseErr
	}

	log.Info("Discovery pass finished",
		zap.Int("processed", job.Processed),
		zap.Int("skipped", job.Skipped),
		zap.Int("errored", job.Errored),
	)
	return nil
}

// evaluateChannel fetches, scores and persists one candidate. The returned
// error is a pause signal; per-channel failures are counted.
func (d *Discovery) evaluateChannel(ctx context.Context, job *models.CollectionJob, usage *quota.Usage,
	counts *tally, channelID string) error {
	res, err := d.pool.Reserve(youtube.CostChannelsList, job.ID)
	if err != nil {
		return err
	}
	usage.Record(res)

	var raw *youtube.RawChannel
	err = d.retrier.Do(ctx, "channels.list", func(callCtx context.Context) error {
		var apiErr error
		raw, apiErr = d.api.GetChannel(callCtx, res.CredentialID, channelID)
		return apiErr
	})
	if err != nil {
		if retry.IsQuotaSignal(err) {
			d.pool.MarkExhausted(res.CredentialID)
			return err
		}
		if retry.Classify(err) == retry.KindTransient {
			counts.skipped.Add(1)
		} else {
			counts.errored.Add(1)
		}
		d.log.Warn("Channel lookup failed", zap.String("channel_id", channelID), zap.Error(err))
		return nil
	}

	channel := models.NewChannel(raw.ChannelID, raw.Title, raw.UploadsPlaylistID)
	channel.Country = raw.Country
	channel.SubscriberCount = raw.SubscriberCount
	channel.VideoCount = raw.VideoCount

	result := d.scorer.Score(classify.Signals{
		Country:     raw.Country,
		TextSamples: []string{raw.Title, raw.Description},
		SeedListed:  d.seeds[channelID],
	})
	channel.ApplyScore(result.Score, result.Verified, result.Inputs)

	// The unit for this lookup is spent; persist the outcome even if the
	// run is shutting down.
	persistCtx := context.WithoutCancel(ctx)
	if err := d.channels.UpsertChannel(persistCtx, channel); err != nil {
		counts.errored.Add(1)
		d.log.Error("Persisting channel failed", zap.String("channel_id", channelID), zap.Error(err))
		return nil
	}
	if err := d.channels.UpdateChannelScore(persistCtx, channel); err != nil {
		counts.errored.Add(1)
		d.log.Error("Persisting channel score failed", zap.String("channel_id", channelID), zap.Error(err))
		return nil
	}

	counts.processed.Add(1)
	d.log.Info("Channel scored",
		zap.String("channel_id", raw.ChannelID),
		zap.Float64("score", result.Score),
		zap.Bool("verified", result.Verified),
	)
	return nil
}
