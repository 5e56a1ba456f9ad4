// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	custom_errors "github-trending/internal/errors"
)

const maxSyncPageSize = 20

// Config holds all configuration for the application.
type Config struct {
	LogLevel                string        `mapstructure:"LOG_LEVEL"`
	DBURL                   string        `mapstructure:"DB_URL"`
	HTTPAddr                string        `mapstructure:"HTTP_ADDR"`
	GithubToken             string        `mapstructure:"GITHUB_TOKEN"`
	GithubAPIURL            string        `mapstructure:"GITHUB_API_URL"`
	GithubGraphQLURL        string        `mapstructure:"GITHUB_GRAPHQL_URL"`
	SearchQuery             string        `mapstructure:"SEARCH_QUERY"`
	SyncPageSize            int           `mapstructure:"SYNC_PAGE_SIZE"`
	QuickSyncTarget         int           `mapstructure:"QUICK_SYNC_TARGET"`
	ComprehensiveSyncTarget int           `mapstructure:"COMPREHENSIVE_SYNC_TARGET"`
	EnrichBatchSize         int           `mapstructure:"ENRICH_BATCH_SIZE"`
	FallbackCommitPages     int           `mapstructure:"FALLBACK_COMMIT_PAGES"`
	PacingDelay             time.Duration `mapstructure:"PACING_DELAY"`
	RateLimitBackoff        time.Duration `mapstructure:"RATE_LIMIT_BACKOFF"`
	TransientBackoff        time.Duration `mapstructure:"TRANSIENT_BACKOFF"`
	MaxBackoff              time.Duration `mapstructure:"MAX_BACKOFF"`
	MaxRetryAttempts        int           `mapstructure:"MAX_RETRY_ATTEMPTS"`
	SyncInterval            time.Duration `mapstructure:"SYNC_INTERVAL"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_URL", "")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GITHUB_TOKEN", "")
	v.SetDefault("GITHUB_API_URL", "")
	v.SetDefault("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql")
	v.SetDefault("SEARCH_QUERY", "stars:>1000 sort:stars-desc")
	v.SetDefault("SYNC_PAGE_SIZE", maxSyncPageSize)
	v.SetDefault("QUICK_SYNC_TARGET", 300)
	v.SetDefault("COMPREHENSIVE_SYNC_TARGET", 1000)
	v.SetDefault("ENRICH_BATCH_SIZE", 300)
	v.SetDefault("FALLBACK_COMMIT_PAGES", 5)
	v.SetDefault("PACING_DELAY", "1s")
	v.SetDefault("RATE_LIMIT_BACKOFF", "60s")
	v.SetDefault("TRANSIENT_BACKOFF", "10s")
	v.SetDefault("MAX_BACKOFF", "10m")
	v.SetDefault("MAX_RETRY_ATTEMPTS", 8)
	v.SetDefault("SYNC_INTERVAL", "0s")
}

func (c *Config) validate() error {
	if c.DBURL == "" {
		return errors.New("DB_URL is a required configuration field")
	}
	if c.GithubToken == "" {
		return custom_errors.ErrMissingToken
	}
	if c.SyncPageSize <= 0 || c.SyncPageSize > maxSyncPageSize {
		c.SyncPageSize = maxSyncPageSize
	}
	if c.QuickSyncTarget <= 0 || c.ComprehensiveSyncTarget <= 0 {
		return errors.New("sync targets must be positive")
	}
	if c.EnrichBatchSize <= 0 {
		return errors.New("ENRICH_BATCH_SIZE must be positive")
	}
	if c.FallbackCommitPages <= 0 {
		return errors.New("FALLBACK_COMMIT_PAGES must be positive")
	}
	if c.MaxRetryAttempts <= 0 {
		return errors.New("MAX_RETRY_ATTEMPTS must be positive")
	}
	if c.SyncInterval < 0 {
		return errors.New("SYNC_INTERVAL must not be negative")
	}
	return nil
}
