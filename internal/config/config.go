// Package config provides configuration management for the collector.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/validation"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	YouTube   YouTubeConfig
	Discovery DiscoveryConfig
	Harvest   HarvestConfig
	Tracking  TrackingConfig
	Relevance RelevanceConfig
	Retry     RetryConfig
	Cache     CacheConfig
	RabbitMQ  RabbitMQConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Server    ServerConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains database connection configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// Credential identifies one YouTube Data API key and its daily unit cap.
type Credential struct {
	ID       string
	APIKey   string
	DailyCap int
}

// YouTubeConfig contains the API credential pool and regional targeting.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type YouTubeConfig struct {
	Credentials []Credential
	Region      string
	Languages   []string
}

// DiscoveryConfig controls channel discovery runs.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DiscoveryConfig struct {
	SeedChannels       []string
	SeedQueries        []string
	Interval           time.Duration
	MaxResultsPerQuery int
}

// HarvestConfig controls metadata harvesting runs.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type HarvestConfig struct {
	Interval           time.Duration
	LookbackDays       int
	BatchSize          int
	MaxPagesPerChannel int
	Workers            int
}

// TrackingConfig controls longitudinal snapshot polling.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type TrackingConfig struct {
	Interval   time.Duration
	WindowDays int
	BatchSize  int
	Workers    int
}

// RelevanceConfig contains the channel scoring weights and threshold.
type RelevanceConfig struct {
	Threshold      float64
	CountryWeight  float64
	LanguageWeight float64
	SeedWeight     float64
}

// RetryConfig controls transient-failure retry behaviour for API calls.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

// CacheConfig selects and sizes the read cache.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type CacheConfig struct {
	Backend    string
	RedisURL   string
	TTL        time.Duration
	MaxEntries int
}

// RabbitMQConfig contains broker connection and routing configuration for
// job summary publishing.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Enabled    bool
	Host       string
	User       string
	Password   string
	Exchange   string
	Queue      string
	RoutingKey string
	Port       int
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read environment variables
	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Single-key shorthand so a bare APP_YOUTUBE_APIKEY still works
	// without a config file.
	if len(cfg.YouTube.Credentials) == 0 {
		if key := viper.GetString("youtube.apikey"); key != "" {
			cfg.YouTube.Credentials = []Credential{{ID: "default", APIKey: key}}
		}
	}

	for i := range cfg.YouTube.Credentials {
		if cfg.YouTube.Credentials[i].DailyCap <= 0 {
			cfg.YouTube.Credentials[i].DailyCap = 10000
		}
	}

	return &cfg, nil
}

// Validate checks the parts of the configuration the collector cannot run
// without. Called by the daemon after Load; tests construct configs directly.
func (c *Config) Validate() error {
	if len(c.YouTube.Credentials) == 0 {
		return fmt.Errorf("at least one youtube credential is required")
	}
	for _, cred := range c.YouTube.Credentials {
		if cred.ID == "" {
			return fmt.Errorf("youtube credential is missing an id")
		}
		if cred.APIKey == "" {
			return fmt.Errorf("youtube credential %q is missing an api key", cred.ID)
		}
	}
	for _, id := range c.Discovery.SeedChannels {
		if !validation.IsChannelID(id) {
			return fmt.Errorf("discovery seed channel %q is not a valid channel id", id)
		}
	}
	if c.Harvest.BatchSize < 1 || c.Harvest.BatchSize > 50 {
		return fmt.Errorf("harvest.batchsize must be between 1 and 50, got %d", c.Harvest.BatchSize)
	}
	if c.Tracking.BatchSize < 1 || c.Tracking.BatchSize > 50 {
		return fmt.Errorf("tracking.batchsize must be between 1 and 50, got %d", c.Tracking.BatchSize)
	}
	if c.Relevance.Threshold < 0 || c.Relevance.Threshold > 1 {
		return fmt.Errorf("relevance.threshold must be within [0,1], got %v", c.Relevance.Threshold)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.maxattempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	return nil
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "viewtrends")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.minconnections", 5)
	viper.SetDefault("database.maxidletime", 10*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)

	// YouTube
	viper.SetDefault("youtube.region", "LK")
	viper.SetDefault("youtube.languages", []string{"sin", "tam", "eng"})

	// Discovery
	viper.SetDefault("discovery.interval", 24*time.Hour)
	viper.SetDefault("discovery.maxresultsperquery", 25)

	// Harvest
	viper.SetDefault("harvest.interval", 12*time.Hour)
	viper.SetDefault("harvest.lookbackdays", 30)
	viper.SetDefault("harvest.batchsize", 50)
	viper.SetDefault("harvest.maxpagesperchannel", 10)
	viper.SetDefault("harvest.workers", 4)

	// Tracking
	viper.SetDefault("tracking.interval", 6*time.Hour)
	viper.SetDefault("tracking.windowdays", 30)
	viper.SetDefault("tracking.batchsize", 50)
	viper.SetDefault("tracking.workers", 4)

	// Relevance
	viper.SetDefault("relevance.threshold", 0.5)
	viper.SetDefault("relevance.countryweight", 0.5)
	viper.SetDefault("relevance.languageweight", 0.3)
	viper.SetDefault("relevance.seedweight", 0.2)

	// Retry
	viper.SetDefault("retry.maxattempts", 5)
	viper.SetDefault("retry.initialbackoff", 1*time.Second)
	viper.SetDefault("retry.maxbackoff", 2*time.Minute)
	viper.SetDefault("retry.attempttimeout", 30*time.Second)

	// Cache
	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.redisurl", "")
	viper.SetDefault("cache.ttl", 5*time.Minute)
	viper.SetDefault("cache.maxentries", 10000)

	// RabbitMQ
	viper.SetDefault("rabbitmq.enabled", false)
	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "viewtrends.collector")
	viper.SetDefault("rabbitmq.queue", "viewtrends.collector.jobs")
	viper.SetDefault("rabbitmq.routingkey", "job.completed")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}
