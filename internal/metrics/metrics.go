// Package metrics exposes the collector's Prometheus instrumentation.
package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds every Prometheus collector the daemon updates. Build one
// per process with New; tests pass their own registry so parallel packages
// never collide on registration.
type Collectors struct {
	QuotaUnitsReserved *prometheus.CounterVec
	SnapshotsAppended  prometheus.Counter
	ViewCountDecreases prometheus.Counter
	RecordsProcessed   *prometheus.CounterVec
	JobRuns            *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	APIFailures        *prometheus.CounterVec
	ActiveTracking     prometheus.Gauge
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter

	reg prometheus.Registerer
}

// New builds and registers all collectors. A nil registerer uses the
// process-wide default registry.
func New(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collectors{reg: reg}

	c.QuotaUnitsReserved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewtrends_quota_units_reserved_total",
			Help: "API units reserved from the quota pool, by credential.",
		},
		[]string{"credential"},
	)

	c.SnapshotsAppended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "viewtrends_snapshots_appended_total",
			Help: "Statistics snapshots appended to the longitudinal store.",
		},
	)

	c.ViewCountDecreases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "viewtrends_view_count_decreases_total",
			Help: "Snapshots whose view count fell below the previous observation.",
		},
	)

	c.RecordsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewtrends_records_processed_total",
			Help: "Records handled by collection jobs, by job type and outcome.",
		},
		[]string{"job_type", "result"},
	)

	c.JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewtrends_job_runs_total",
			Help: "Completed collection job runs, by job type and final status.",
		},
		[]string{"job_type", "status"},
	)

	c.JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "viewtrends_job_duration_seconds",
			Help:    "Wall-clock duration of collection job runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"job_type"},
	)

	c.APIFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewtrends_api_call_failures_total",
			Help: "YouTube API call failures, by classified kind.",
		},
		[]string{"kind"},
	)

	c.ActiveTracking = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "viewtrends_tracking_active_videos",
			Help: "Videos currently in the active tracking set.",
		},
	)

	c.CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "viewtrends_cache_hits_total",
			Help: "Query API cache hits.",
		},
	)

	c.CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "viewtrends_cache_misses_total",
			Help: "Query API cache misses.",
		},
	)

	reg.MustRegister(
		c.QuotaUnitsReserved,
		c.SnapshotsAppended,
		c.ViewCountDecreases,
		c.RecordsProcessed,
		c.JobRuns,
		c.JobDuration,
		c.APIFailures,
		c.ActiveTracking,
		c.CacheHits,
		c.CacheMisses,
	)

	return c
}

// RegisterPoolStats adds live gauges over the pgx connection pool.
func (c *Collectors) RegisterPoolStats(pool *pgxpool.Pool) {
	if pool == nil {
		return
	}

	c.reg.MustRegister(
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "viewtrends_db_connection_pool_active",
				Help: "Active database connections.",
			},
			func() float64 { return float64(pool.Stat().AcquiredConns()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "viewtrends_db_connection_pool_idle",
				Help: "Idle database connections.",
			},
			func() float64 { return float64(pool.Stat().IdleConns()) },
		),
	)
}
