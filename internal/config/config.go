package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Sources     SourcesConfig     `mapstructure:"sources"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
	Bundle      BundleConfig      `mapstructure:"bundle"`
}

// DatabaseConfig holds sqlite configuration for the slug registry and denylist.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// CacheConfig holds two-tier cache configuration.
type CacheConfig struct {
	Dir            string        `mapstructure:"dir"`
	DefaultTTL     time.Duration `mapstructure:"default_ttl"`
	DiskMultiplier int           `mapstructure:"disk_multiplier"`
	MaxMemoryItems int           `mapstructure:"max_memory_items"`
}

// SourcesConfig holds upstream fetch configuration.
type SourcesConfig struct {
	DefinitionsPath string        `mapstructure:"definitions_path"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
}

// AggregationConfig holds identity resolution and merge configuration.
type AggregationConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MinDirectVotes      int     `mapstructure:"min_direct_votes"`
	MaxDescriptionLen   int     `mapstructure:"max_description_len"`
	WindowedMultiplier  int     `mapstructure:"windowed_multiplier"`
}

// RefreshConfig holds incremental refresh configuration.
type RefreshConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	KnownStreak int           `mapstructure:"known_streak"`
}

// BundleConfig holds offline seed bundle configuration.
type BundleConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.mediafuse")
	}

	v.SetEnvPrefix("MEDIAFUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "./data/mediafuse.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("cache.dir", "./data/cache")
	v.SetDefault("cache.default_ttl", "30m")
	v.SetDefault("cache.disk_multiplier", 6)
	v.SetDefault("cache.max_memory_items", 2000)

	v.SetDefault("sources.definitions_path", "./configs/sources.yaml")
	v.SetDefault("sources.fetch_timeout", "20s")
	v.SetDefault("sources.max_retries", 2)
	v.SetDefault("sources.retry_delay", "2s")
	v.SetDefault("sources.max_concurrent", 4)

	v.SetDefault("aggregation.similarity_threshold", 0.90)
	v.SetDefault("aggregation.min_direct_votes", 10)
	v.SetDefault("aggregation.max_description_len", 500)
	v.SetDefault("aggregation.windowed_multiplier", 5)

	v.SetDefault("refresh.interval", "45m")
	v.SetDefault("refresh.known_streak", 5)

	v.SetDefault("bundle.path", "")
}
