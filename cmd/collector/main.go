// Command collector runs the ViewTrendsSL acquisition daemon: scheduled
// discovery, harvest and tracking passes against the YouTube Data API, plus
// the read-only query API over the collected corpus.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/cache"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/classify"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/config"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/repository"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/handler"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/harvest"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/metrics"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/retry"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/scheduler"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/service"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/track"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/youtube"
	"github.com/L0rd008/ViewTrendsSL-sub002/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.Named("collector")
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		log.Fatal("Database connection failed", zap.Error(err))
	}
	defer pool.Close()

	log.Info("Database connection established", zap.Int32("max_conns", pool.Config().MaxConns))

	videoRepo := repository.NewVideoRepository(pool)
	channelRepo := repository.NewChannelRepository(pool)
	snapshotRepo := repository.NewSnapshotRepository(pool)
	jobRepo := repository.NewJobRepository(pool)

	collectors := metrics.New(nil)
	collectors.RegisterPoolStats(pool)

	credentials := make([]quota.Credential, 0, len(cfg.YouTube.Credentials))
	keys := make([]youtube.APIKey, 0, len(cfg.YouTube.Credentials))
	for _, cred := range cfg.YouTube.Credentials {
		credentials = append(credentials, quota.Credential{ID: cred.ID, DailyCap: int64(cred.DailyCap)})
		keys = append(keys, youtube.APIKey{ID: cred.ID, Key: cred.APIKey})
	}

	quotaPool := quota.NewPool(credentials, logger.Named("quota"))

	apiClient, err := youtube.NewClient(ctx, keys, logger.Named("youtube"))
	if err != nil {
		log.Fatal("YouTube client initialization failed", zap.Error(err))
	}

	retrier := retry.NewController(retry.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
		OnFailure: func(kind retry.Kind) {
			collectors.APIFailures.WithLabelValues(kind.String()).Inc()
		},
	}, logger.Named("retry"))

	scorer := classify.NewScorer(classify.Config{
		Region:         cfg.YouTube.Region,
		Languages:      cfg.YouTube.Languages,
		Threshold:      cfg.Relevance.Threshold,
		CountryWeight:  cfg.Relevance.CountryWeight,
		LanguageWeight: cfg.Relevance.LanguageWeight,
		SeedWeight:     cfg.Relevance.SeedWeight,
	})

	discovery := harvest.NewDiscovery(apiClient, quotaPool, retrier, scorer, channelRepo, harvest.DiscoveryConfig{
		SeedChannels:       cfg.Discovery.SeedChannels,
		SeedQueries:        cfg.Discovery.SeedQueries,
		Region:             cfg.YouTube.Region,
		MaxResultsPerQuery: cfg.Discovery.MaxResultsPerQuery,
	}, logger.Named("discovery"))

	harvester := harvest.NewHarvester(apiClient, quotaPool, retrier, channelRepo, videoRepo, harvest.Config{
		Lookback:       time.Duration(cfg.Harvest.LookbackDays) * 24 * time.Hour,
		TrackingWindow: time.Duration(cfg.Tracking.WindowDays) * 24 * time.Hour,
		BatchSize:      cfg.Harvest.BatchSize,
		MaxPages:       cfg.Harvest.MaxPagesPerChannel,
		Workers:        cfg.Harvest.Workers,
	}, logger.Named("harvest"))

	tracker := track.NewTracker(apiClient, quotaPool, retrier, videoRepo, snapshotRepo, track.Config{
		Window:       time.Duration(cfg.Tracking.WindowDays) * 24 * time.Hour,
		PollInterval: cfg.Tracking.Interval,
		BatchSize:    cfg.Tracking.BatchSize,
		Workers:      cfg.Tracking.Workers,
		OnAppend:     collectors.SnapshotsAppended.Inc,
		OnDecrease:   collectors.ViewCountDecreases.Inc,
	}, logger.Named("track"))

	readCache := &instrumentedCache{
		Cache:  buildCache(cfg, logger.Named("cache")),
		hits:   collectors.CacheHits,
		misses: collectors.CacheMisses,
	}
	defer readCache.Close()

	var publisher *service.SummaryPublisher
	if cfg.RabbitMQ.Enabled {
		publisher, err = service.NewSummaryPublisher(&cfg.RabbitMQ, logger.Named("rabbitmq"))
		if err != nil {
			log.Warn("RabbitMQ connection failed, job summaries will not be published", zap.Error(err))
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	runner := &jobRunner{
		jobs:    jobRepo,
		videos:  videoRepo,
		metrics: collectors,
		log:     logger.Named("jobs"),
	}
	if publisher != nil {
		runner.broker = publisher
	}

	sched := scheduler.New(nil, logger.Named("scheduler"))
	sched.Add(scheduler.Job{
		Name:           models.JobTypeDiscovery,
		Interval:       cfg.Discovery.Interval,
		RunImmediately: true,
		Fn: func(ctx context.Context, tick time.Time) {
			runner.run(ctx, models.JobTypeDiscovery, tick, discovery.Run)
		},
	})
	sched.Add(scheduler.Job{
		Name:     models.JobTypeHarvest,
		Interval: cfg.Harvest.Interval,
		Fn: func(ctx context.Context, tick time.Time) {
			runner.run(ctx, models.JobTypeHarvest, tick, harvester.Run)
		},
	})
	sched.Add(scheduler.Job{
		Name:     models.JobTypeTracking,
		Interval: cfg.Tracking.Interval,
		Fn: func(ctx context.Context, tick time.Time) {
			runner.run(ctx, models.JobTypeTracking, tick, tracker.Run)
		},
	})

	queryHandler := handler.NewQueryHandler(videoRepo, snapshotRepo, channelRepo, jobRepo,
		readCache, cfg.Cache.TTL, logger.Named("api"))

	var broker handler.BrokerHealth
	if publisher != nil {
		broker = publisher
	}
	healthHandler := handler.NewHealthHandler(pool, broker)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.NewRouter(queryHandler, healthHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Query API listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.ListenAndServe()
	}()

	schedulerDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedulerDone)
	}()

	log.Info("Collector started",
		zap.Int("credentials", len(credentials)),
		zap.Duration("discovery_interval", cfg.Discovery.Interval),
		zap.Duration("harvest_interval", cfg.Harvest.Interval),
		zap.Duration("tracking_interval", cfg.Tracking.Interval),
	)

	select {
	case err := <-serverErrors:
		log.Error("Query API server failed", zap.Error(err))
		stop()
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful server shutdown failed", zap.Error(err))
		if err := server.Close(); err != nil {
			log.Error("Closing server failed", zap.Error(err))
		}
	}

	// A pass in flight at shutdown finishes its current records before the
	// scheduler returns.
	<-schedulerDone

	log.Info("Collector stopped")
}

// poolConfig maps the loaded configuration onto the db package's pool
// settings.
func poolConfig(cfg *config.Config) *db.Config {
	return &db.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxConnections),
		MinConns:        int32(cfg.Database.MinConnections),
		MaxConnLifetime: cfg.Database.MaxLifetime,
		MaxConnIdleTime: cfg.Database.MaxIdleTime,
	}
}

func buildCache(cfg *config.Config, log *zap.Logger) cache.Cache {
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedis(cfg.Cache.RedisURL, log)
	}
	return cache.NewMemory(cfg.Cache.MaxEntries)
}
