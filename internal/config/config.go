package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Store    StoreConfig    `mapstructure:"store"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// KafkaConfig holds the ingestion-signal consumer settings.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// StoreConfig points at the event and feast snapshot files.
type StoreConfig struct {
	EventsPath string `mapstructure:"events_path"`
	FeastsPath string `mapstructure:"feasts_path"`
}

// AnalysisConfig holds the engine defaults applied when a query omits an
// option.
type AnalysisConfig struct {
	WindowDays      int           `mapstructure:"window_days"`
	Iterations      int           `mapstructure:"monte_carlo_iterations"`
	ConfidenceLevel int           `mapstructure:"confidence_level"`
	BaselineYears   int           `mapstructure:"baseline_years"`
	Decay           float64       `mapstructure:"decay"`
	Epsilon         float64       `mapstructure:"epsilon"`
	MinPoints       int           `mapstructure:"min_points"`
	Workers         int           `mapstructure:"workers"`
	Budget          time.Duration `mapstructure:"budget"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file plus FEAST_CORR_*
// environment overrides, applying defaults where unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FEAST_CORR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "event-ingestion-signals")
	v.SetDefault("kafka.group_id", "feast-correlation")

	v.SetDefault("store.events_path", "./data/events.json")
	v.SetDefault("store.feasts_path", "./data/feasts.json")

	v.SetDefault("analysis.window_days", 7)
	v.SetDefault("analysis.monte_carlo_iterations", 1000)
	v.SetDefault("analysis.confidence_level", 95)
	v.SetDefault("analysis.baseline_years", 5)
	v.SetDefault("analysis.decay", 0.85)
	v.SetDefault("analysis.epsilon", 3.0)
	v.SetDefault("analysis.min_points", 4)
	v.SetDefault("analysis.workers", 4)
	v.SetDefault("analysis.budget", "2s")

	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("shutdown_timeout", "10s")
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}
	if c.Store.EventsPath == "" {
		return fmt.Errorf("store.events_path is required")
	}
	if c.Store.FeastsPath == "" {
		return fmt.Errorf("store.feasts_path is required")
	}
	if c.Analysis.WindowDays < 0 {
		return fmt.Errorf("analysis.window_days must be >= 0")
	}
	if c.Analysis.Iterations < 1 {
		return fmt.Errorf("analysis.monte_carlo_iterations must be >= 1")
	}
	if c.Analysis.ConfidenceLevel != 95 && c.Analysis.ConfidenceLevel != 99 {
		return fmt.Errorf("analysis.confidence_level must be 95 or 99")
	}
	if c.Analysis.BaselineYears < 1 {
		return fmt.Errorf("analysis.baseline_years must be >= 1")
	}
	if c.Analysis.Decay <= 0 || c.Analysis.Decay > 1 {
		return fmt.Errorf("analysis.decay must be in (0,1]")
	}
	if c.Analysis.Epsilon <= 0 {
		return fmt.Errorf("analysis.epsilon must be > 0")
	}
	if c.Analysis.MinPoints < 1 {
		return fmt.Errorf("analysis.min_points must be >= 1")
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis.workers must be >= 1")
	}
	if c.Analysis.Budget <= 0 {
		return fmt.Errorf("analysis.budget must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}
