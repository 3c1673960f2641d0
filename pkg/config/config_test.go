package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Database.MaxReadConns != 4 {
		t.Errorf("Expected MaxReadConns=4, got %d", cfg.Database.MaxReadConns)
	}
	if !cfg.Database.WALEnabled {
		t.Error("Expected WALEnabled=true")
	}

	if cfg.Decay.DecayIntervalHours != 24 {
		t.Errorf("Expected DecayIntervalHours=24, got %d", cfg.Decay.DecayIntervalHours)
	}
	if !cfg.Decay.EnableCompression {
		t.Error("Expected EnableCompression=true")
	}

	if cfg.Validator.MaxRequestsPerMinute != 120 {
		t.Errorf("Expected MaxRequestsPerMinute=120, got %d", cfg.Validator.MaxRequestsPerMinute)
	}
	if cfg.Validator.MaxBatchSize != 100 {
		t.Errorf("Expected MaxBatchSize=100, got %d", cfg.Validator.MaxBatchSize)
	}

	if cfg.Vector.Dimension != 384 {
		t.Errorf("Expected Dimension=384, got %d", cfg.Vector.Dimension)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, true},
		{"decay interval too low", func(c *Config) { c.Decay.DecayIntervalHours = 0 }, true},
		{"decay interval too high", func(c *Config) { c.Decay.DecayIntervalHours = 200 }, true},
		{"quota too high", func(c *Config) { c.Decay.MaxMemoriesPerUser = 2_000_000 }, true},
		{"importance threshold out of range", func(c *Config) { c.Decay.ImportanceThreshold = 1.5 }, true},
		{"requests per minute too high", func(c *Config) { c.Validator.MaxRequestsPerMinute = 20_000 }, true},
		{"batch size too high", func(c *Config) { c.Validator.MaxBatchSize = 2000 }, true},
		{"invalid logging level", func(c *Config) { c.Logging.Level = "invalid" }, true},
		{"invalid logging format", func(c *Config) { c.Logging.Format = "invalid" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error with missing config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected config, got nil")
	}
	if cfg.Validator.MaxRequestsPerMinute != 120 {
		t.Errorf("Expected default MaxRequestsPerMinute=120, got %d", cfg.Validator.MaxRequestsPerMinute)
	}
}

func TestLoadConfig_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  path: /tmp/test.db
  max_read_conns: 8
decay:
  decay_interval_hours: 12
  max_memories_per_user: 500
validator:
  max_requests_per_minute: 60
  max_batch_size: 50
logging:
  level: debug
  format: json
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Expected database path=/tmp/test.db, got %s", cfg.Database.Path)
	}
	if cfg.Decay.DecayIntervalHours != 12 {
		t.Errorf("Expected decay_interval_hours=12, got %d", cfg.Decay.DecayIntervalHours)
	}
	if cfg.Validator.MaxRequestsPerMinute != 60 {
		t.Errorf("Expected max_requests_per_minute=60, got %d", cfg.Validator.MaxRequestsPerMinute)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected level=debug, got %s", cfg.Logging.Level)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(tmpDir, "subdir", "test.db"),
		},
	}

	if err := cfg.EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "subdir")); os.IsNotExist(err) {
		t.Error("Config directory was not created")
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if path == "" {
		t.Error("ConfigPath returned empty string")
	}
	homeDir, _ := os.UserHomeDir()
	expected := filepath.Join(homeDir, ".mindcache")
	if path != expected {
		t.Errorf("Expected %s, got %s", expected, path)
	}
}

func TestDatabasePath(t *testing.T) {
	path := DatabasePath()
	if path == "" {
		t.Error("DatabasePath returned empty string")
	}
	if filepath.Base(path) != "mindcache.db" {
		t.Errorf("Expected database file named mindcache.db, got %s", filepath.Base(path))
	}
}
