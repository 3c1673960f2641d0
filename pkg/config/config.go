package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-start configuration record: where the
// database lives, decay/quota/validator tuning, and storage-engine
// pool parameters.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Decay     DecayConfig     `mapstructure:"decay"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
}

// ServerConfig tunes the optional local REST shell.
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AutoPort     bool     `mapstructure:"auto_port"`
	CORSEnabled  bool     `mapstructure:"cors_enabled"`
	AllowOrigins []string `mapstructure:"allow_origins"`
	APIKey       string   `mapstructure:"api_key"`
}

// DatabaseConfig holds the storage engine's on-disk and pool settings.
type DatabaseConfig struct {
	Path                  string        `mapstructure:"path"`
	ReadReplicaPaths      []string      `mapstructure:"read_replica_paths"`
	MaxReadConns          int           `mapstructure:"max_read_conns"`
	WALEnabled            bool          `mapstructure:"wal_enabled"`
	CacheSizePages        int           `mapstructure:"cache_size_pages"`
	BusyTimeout           time.Duration `mapstructure:"busy_timeout"`
	MmapSizeBytes         int64         `mapstructure:"mmap_size_bytes"`
	LeaseTimeout          time.Duration `mapstructure:"lease_timeout"`
	DefaultMemoryTTLHours *int          `mapstructure:"default_memory_ttl_hours"`
}

// DecayConfig holds the decay policy each run executes under.
// AutoDecayEnabled and DecayIntervalHours are loaded and validated, but
// nothing in this module schedules decay runs from them.
type DecayConfig struct {
	AutoDecayEnabled      bool    `mapstructure:"auto_decay_enabled"`
	DecayIntervalHours    int     `mapstructure:"decay_interval_hours"`
	EnableCompression     bool    `mapstructure:"enable_compression"`
	AutoSummarizeSessions bool    `mapstructure:"auto_summarize_sessions"`
	MaxAgeHours           int     `mapstructure:"max_age_hours"`
	MaxMemoriesPerUser    int     `mapstructure:"max_memories_per_user"`
	ImportanceThreshold   float32 `mapstructure:"importance_threshold"`
}

// ValidatorConfig tunes the request validator's rate limiter and
// batch/quota bounds.
type ValidatorConfig struct {
	EnableRequestLimits  bool `mapstructure:"enable_request_limits"`
	MaxRequestsPerMinute int  `mapstructure:"max_requests_per_minute"`
	MaxBatchSize         int  `mapstructure:"max_batch_size"`
}

// VectorConfig tunes the vector index's dimension and similarity
// defaults.
type VectorConfig struct {
	Dimension               int     `mapstructure:"dimension"`
	SimilarityThreshold     float64 `mapstructure:"similarity_threshold"`
	MaxResults              int     `mapstructure:"max_results"`
	EnableApproximateSearch bool    `mapstructure:"enable_approximate_search"`
}

// LoggingConfig holds structured-logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// DefaultConfig returns configuration with the defaults documented in
// the external-interfaces section of the design: decay interval
// within [1,168]h, quota within [1,10^6], importance threshold within
// [0,1], request limits within their documented bounds.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".mindcache")

	return &Config{
		Database: DatabaseConfig{
			Path:           filepath.Join(configDir, "mindcache.db"),
			MaxReadConns:   4,
			WALEnabled:     true,
			CacheSizePages: -20000,
			BusyTimeout:    30 * time.Second,
			MmapSizeBytes:  256 << 20,
			LeaseTimeout:   30 * time.Second,
		},
		Decay: DecayConfig{
			AutoDecayEnabled:      false,
			DecayIntervalHours:    24,
			EnableCompression:     true,
			AutoSummarizeSessions: true,
			MaxAgeHours:           24 * 30,
			MaxMemoriesPerUser:    100000,
			ImportanceThreshold:   0.3,
		},
		Validator: ValidatorConfig{
			EnableRequestLimits:  true,
			MaxRequestsPerMinute: 120,
			MaxBatchSize:         100,
		},
		Vector: VectorConfig{
			Dimension:               384,
			SimilarityThreshold:     0.7,
			MaxResults:              50,
			EnableApproximateSearch: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8420,
			AutoPort:    true,
			CORSEnabled: true,
		},
	}
}

// Load loads configuration from YAML with fallback to defaults.
// Searches ./config.yaml, ~/.mindcache/config.yaml, /etc/mindcache.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".mindcache"))
	v.AddConfigPath("/etc/mindcache")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.max_read_conns", d.Database.MaxReadConns)
	v.SetDefault("database.wal_enabled", d.Database.WALEnabled)
	v.SetDefault("database.cache_size_pages", d.Database.CacheSizePages)
	v.SetDefault("database.busy_timeout", d.Database.BusyTimeout)
	v.SetDefault("database.mmap_size_bytes", d.Database.MmapSizeBytes)
	v.SetDefault("database.lease_timeout", d.Database.LeaseTimeout)

	v.SetDefault("decay.auto_decay_enabled", d.Decay.AutoDecayEnabled)
	v.SetDefault("decay.decay_interval_hours", d.Decay.DecayIntervalHours)
	v.SetDefault("decay.enable_compression", d.Decay.EnableCompression)
	v.SetDefault("decay.auto_summarize_sessions", d.Decay.AutoSummarizeSessions)
	v.SetDefault("decay.max_age_hours", d.Decay.MaxAgeHours)
	v.SetDefault("decay.max_memories_per_user", d.Decay.MaxMemoriesPerUser)
	v.SetDefault("decay.importance_threshold", d.Decay.ImportanceThreshold)

	v.SetDefault("validator.enable_request_limits", d.Validator.EnableRequestLimits)
	v.SetDefault("validator.max_requests_per_minute", d.Validator.MaxRequestsPerMinute)
	v.SetDefault("validator.max_batch_size", d.Validator.MaxBatchSize)

	v.SetDefault("vector.dimension", d.Vector.Dimension)
	v.SetDefault("vector.similarity_threshold", d.Vector.SimilarityThreshold)
	v.SetDefault("vector.max_results", d.Vector.MaxResults)
	v.SetDefault("vector.enable_approximate_search", d.Vector.EnableApproximateSearch)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.auto_port", d.Server.AutoPort)
	v.SetDefault("server.cors_enabled", d.Server.CORSEnabled)
	v.SetDefault("server.allow_origins", d.Server.AllowOrigins)
	v.SetDefault("server.api_key", d.Server.APIKey)
}

// Validate checks the record against the bounds documented in the
// external-interfaces section: decay interval in [1,168]h, quota in
// [1,10^6], importance threshold in [0,1], request-per-minute in
// [1,10^4], batch size in [1,10^3].
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Decay.DecayIntervalHours < 1 || c.Decay.DecayIntervalHours > 168 {
		return fmt.Errorf("decay.decay_interval_hours must be in [1,168]")
	}
	if c.Decay.MaxMemoriesPerUser < 1 || c.Decay.MaxMemoriesPerUser > 1_000_000 {
		return fmt.Errorf("decay.max_memories_per_user must be in [1,1000000]")
	}
	if c.Decay.ImportanceThreshold < 0 || c.Decay.ImportanceThreshold > 1 {
		return fmt.Errorf("decay.importance_threshold must be in [0,1]")
	}

	if c.Validator.EnableRequestLimits {
		if c.Validator.MaxRequestsPerMinute < 1 || c.Validator.MaxRequestsPerMinute > 10_000 {
			return fmt.Errorf("validator.max_requests_per_minute must be in [1,10000]")
		}
	}
	if c.Validator.MaxBatchSize < 1 || c.Validator.MaxBatchSize > 1_000 {
		return fmt.Errorf("validator.max_batch_size must be in [1,1000]")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}
	return nil
}

// EnsureConfigDir creates the database file's parent directory.
func (c *Config) EnsureConfigDir() error {
	dir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// ConfigPath returns the default configuration directory.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".mindcache")
}

// DatabasePath returns the default database file path.
func DatabasePath() string {
	return filepath.Join(ConfigPath(), "mindcache.db")
}
