package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		setup   func()
		cleanup func()
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "load with defaults (no config file)",
			setup: func() {
				// Reset viper
				viper.Reset()
			},
			cleanup: func() {},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 8080 {
					t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
				}
				if cfg.Database.Host != "localhost" {
					t.Errorf("Database.Host = %s, want localhost", cfg.Database.Host)
				}
				if cfg.YouTube.Region != "LK" {
					t.Errorf("YouTube.Region = %s, want LK", cfg.YouTube.Region)
				}
				if len(cfg.YouTube.Languages) != 3 {
					t.Errorf("YouTube.Languages = %v, want 3 entries", cfg.YouTube.Languages)
				}
				if cfg.Tracking.Interval != 6*time.Hour {
					t.Errorf("Tracking.Interval = %v, want 6h", cfg.Tracking.Interval)
				}
				if cfg.Tracking.WindowDays != 30 {
					t.Errorf("Tracking.WindowDays = %d, want 30", cfg.Tracking.WindowDays)
				}
				if cfg.Harvest.BatchSize != 50 {
					t.Errorf("Harvest.BatchSize = %d, want 50", cfg.Harvest.BatchSize)
				}
				if cfg.Relevance.Threshold != 0.5 {
					t.Errorf("Relevance.Threshold = %v, want 0.5", cfg.Relevance.Threshold)
				}
				if cfg.Retry.MaxAttempts != 5 {
					t.Errorf("Retry.MaxAttempts = %d, want 5", cfg.Retry.MaxAttempts)
				}
				if cfg.Cache.Backend != "memory" {
					t.Errorf("Cache.Backend = %s, want memory", cfg.Cache.Backend)
				}
				if cfg.RabbitMQ.Enabled {
					t.Error("RabbitMQ.Enabled = true, want false")
				}
			},
		},
		{
			name: "load with environment variables",
			setup: func() {
				viper.Reset()
				viper.SetEnvPrefix("APP")
				viper.AutomaticEnv()
				os.Setenv("APP_SERVER_PORT", "9090")
				os.Setenv("APP_DATABASE_HOST", "testdb")
				os.Setenv("APP_YOUTUBE_REGION", "IN")
				os.Setenv("APP_TRACKING_WINDOWDAYS", "14")
				// Manually bind env vars since AutomaticEnv doesn't work with nested keys
				viper.BindEnv("server.port", "APP_SERVER_PORT")
				viper.BindEnv("database.host", "APP_DATABASE_HOST")
				viper.BindEnv("youtube.region", "APP_YOUTUBE_REGION")
				viper.BindEnv("tracking.windowdays", "APP_TRACKING_WINDOWDAYS")
			},
			cleanup: func() {
				os.Unsetenv("APP_SERVER_PORT")
				os.Unsetenv("APP_DATABASE_HOST")
				os.Unsetenv("APP_YOUTUBE_REGION")
				os.Unsetenv("APP_TRACKING_WINDOWDAYS")
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 9090 {
					t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
				}
				if cfg.Database.Host != "testdb" {
					t.Errorf("Database.Host = %s, want testdb", cfg.Database.Host)
				}
				if cfg.YouTube.Region != "IN" {
					t.Errorf("YouTube.Region = %s, want IN", cfg.YouTube.Region)
				}
				if cfg.Tracking.WindowDays != 14 {
					t.Errorf("Tracking.WindowDays = %d, want 14", cfg.Tracking.WindowDays)
				}
			},
		},
		{
			name: "single api key shorthand builds a default credential",
			setup: func() {
				viper.Reset()
				viper.SetEnvPrefix("APP")
				viper.AutomaticEnv()
				os.Setenv("APP_YOUTUBE_APIKEY", "test-key")
				viper.BindEnv("youtube.apikey", "APP_YOUTUBE_APIKEY")
			},
			cleanup: func() {
				os.Unsetenv("APP_YOUTUBE_APIKEY")
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				if len(cfg.YouTube.Credentials) != 1 {
					t.Fatalf("Credentials = %v, want 1 entry", cfg.YouTube.Credentials)
				}
				cred := cfg.YouTube.Credentials[0]
				if cred.ID != "default" {
					t.Errorf("Credential.ID = %s, want default", cred.ID)
				}
				if cred.APIKey != "test-key" {
					t.Errorf("Credential.APIKey = %s, want test-key", cred.APIKey)
				}
				if cred.DailyCap != 10000 {
					t.Errorf("Credential.DailyCap = %d, want 10000", cred.DailyCap)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			defer func() {
				if tt.cleanup != nil {
					tt.cleanup()
				}
			}()

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr && cfg == nil {
				t.Fatal("Load() returned nil config")
			}

			if tt.check != nil && cfg != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	setDefaults()

	tests := []struct {
		name string
		key  string
		want interface{}
	}{
		{"server port", "server.port", 8080},
		{"database host", "database.host", "localhost"},
		{"database port", "database.port", 5432},
		{"database name", "database.name", "viewtrends"},
		{"database sslmode", "database.sslmode", "disable"},
		{"youtube region", "youtube.region", "LK"},
		{"discovery maxresultsperquery", "discovery.maxresultsperquery", 25},
		{"harvest lookbackdays", "harvest.lookbackdays", 30},
		{"harvest batchsize", "harvest.batchsize", 50},
		{"harvest workers", "harvest.workers", 4},
		{"tracking windowdays", "tracking.windowdays", 30},
		{"tracking batchsize", "tracking.batchsize", 50},
		{"relevance threshold", "relevance.threshold", 0.5},
		{"relevance countryweight", "relevance.countryweight", 0.5},
		{"relevance languageweight", "relevance.languageweight", 0.3},
		{"relevance seedweight", "relevance.seedweight", 0.2},
		{"retry maxattempts", "retry.maxattempts", 5},
		{"cache backend", "cache.backend", "memory"},
		{"cache maxentries", "cache.maxentries", 10000},
		{"rabbitmq enabled", "rabbitmq.enabled", false},
		{"rabbitmq exchange", "rabbitmq.exchange", "viewtrends.collector"},
		{"rabbitmq routingkey", "rabbitmq.routingkey", "job.completed"},
		{"logging level", "logging.level", "info"},
		{"logging file", "logging.file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := viper.Get(tt.key)
			if got != tt.want {
				t.Errorf("viper.Get(%s) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}

	// Test time.Duration defaults
	if viper.GetDuration("server.shutdowntimeout") != 30*time.Second {
		t.Errorf("server.shutdowntimeout = %v, want 30s", viper.GetDuration("server.shutdowntimeout"))
	}
	if viper.GetDuration("tracking.interval") != 6*time.Hour {
		t.Errorf("tracking.interval = %v, want 6h", viper.GetDuration("tracking.interval"))
	}
	if viper.GetDuration("harvest.interval") != 12*time.Hour {
		t.Errorf("harvest.interval = %v, want 12h", viper.GetDuration("harvest.interval"))
	}
	if viper.GetDuration("retry.initialbackoff") != time.Second {
		t.Errorf("retry.initialbackoff = %v, want 1s", viper.GetDuration("retry.initialbackoff"))
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			YouTube: YouTubeConfig{
				Credentials: []Credential{{ID: "primary", APIKey: "key", DailyCap: 10000}},
				Region:      "LK",
				Languages:   []string{"sin", "tam", "eng"},
			},
			Harvest:   HarvestConfig{BatchSize: 50},
			Tracking:  TrackingConfig{BatchSize: 50},
			Relevance: RelevanceConfig{Threshold: 0.5},
			Retry:     RetryConfig{MaxAttempts: 5},
			Cache:     CacheConfig{Backend: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"no credentials", func(c *Config) { c.YouTube.Credentials = nil }, true},
		{"credential without id", func(c *Config) { c.YouTube.Credentials[0].ID = "" }, true},
		{"credential without api key", func(c *Config) { c.YouTube.Credentials[0].APIKey = "" }, true},
		{"malformed seed channel", func(c *Config) { c.Discovery.SeedChannels = []string{"not-a-channel"} }, true},
		{"well-formed seed channel", func(c *Config) { c.Discovery.SeedChannels = []string{"UCuAXFkgsw1L7xaCfnd5JJOw"} }, false},
		{"harvest batch too large", func(c *Config) { c.Harvest.BatchSize = 51 }, true},
		{"tracking batch zero", func(c *Config) { c.Tracking.BatchSize = 0 }, true},
		{"threshold above one", func(c *Config) { c.Relevance.Threshold = 1.5 }, true},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, true},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, true},
		{"redis backend accepted", func(c *Config) { c.Cache.Backend = "redis" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
