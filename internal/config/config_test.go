package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/snehjoshi/leaseq/internal/config"
	"github.com/snehjoshi/leaseq/internal/queue"
)

func TestDefault_HasSensibleValues(t *testing.T) {
	cfg := config.Default()

	if cfg.Queue.MaxLeaseMinutes != 20 {
		t.Errorf("expected default max_lease_minutes 20, got %d", cfg.Queue.MaxLeaseMinutes)
	}
	if cfg.Queue.SweepIntervalSeconds != 4 {
		t.Errorf("expected default sweep_interval_seconds 4, got %d", cfg.Queue.SweepIntervalSeconds)
	}
	if cfg.Queue.MaxItems != 0 {
		t.Errorf("expected unbounded queue by default, got max_items %d", cfg.Queue.MaxItems)
	}
	if cfg.Admin.Enabled {
		t.Error("admin server must be disabled by default")
	}
	if cfg.Admin.Addr() != "127.0.0.1:8085" {
		t.Errorf("expected default admin addr 127.0.0.1:8085, got %s", cfg.Admin.Addr())
	}
	if cfg.Demo.QueueName != "Demo Queue" || cfg.Demo.SkipOneIn != 7 || cfg.Demo.LeaseMinutes != 1 {
		t.Errorf("unexpected demo defaults: %+v", cfg.Demo)
	}
	if cfg.Archive.Enabled {
		t.Error("archive must be disabled by default")
	}
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.Queue.MaxLeaseMinutes != 20 {
		t.Errorf("expected default lease ceiling for missing file, got %d", cfg.Queue.MaxLeaseMinutes)
	}
}

func TestLoad_EmptyPath_ReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.Admin.Port != 8085 {
		t.Errorf("expected default admin port, got %d", cfg.Admin.Port)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	yaml := `
queue:
  max_lease_minutes: 45
  max_items: 1000
admin:
  enabled: true
  port: 9999
demo:
  items: 3
log:
  level: debug
  format: json
`
	path := writeTempYAML(t, yaml)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Queue.MaxLeaseMinutes != 45 {
		t.Errorf("expected max_lease_minutes 45, got %d", cfg.Queue.MaxLeaseMinutes)
	}
	if cfg.Queue.MaxItems != 1000 {
		t.Errorf("expected max_items 1000, got %d", cfg.Queue.MaxItems)
	}
	if !cfg.Admin.Enabled || cfg.Admin.Port != 9999 {
		t.Errorf("expected admin enabled on 9999, got %+v", cfg.Admin)
	}
	if cfg.Demo.Items != 3 {
		t.Errorf("expected demo items 3, got %d", cfg.Demo.Items)
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.Log.SlogLevel())
	}
	// Unset fields keep their defaults.
	if cfg.Queue.SweepIntervalSeconds != 4 {
		t.Errorf("expected default sweep interval 4 (unchanged), got %d", cfg.Queue.SweepIntervalSeconds)
	}
	if cfg.Demo.QueueName != "Demo Queue" {
		t.Errorf("expected default demo queue name (unchanged), got %q", cfg.Demo.QueueName)
	}
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	path := writeTempYAML(t, "queue: [invalid: yaml: {{{}}")
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEASEQ_MAX_LEASE_MINUTES", "7")
	t.Setenv("LEASEQ_SWEEP_INTERVAL_SECONDS", "2")
	t.Setenv("LEASEQ_ADMIN_PORT", "7070")
	t.Setenv("LEASEQ_API_KEY", "s3cret")
	t.Setenv("LEASEQ_ARCHIVE_PATH", filepath.Join(t.TempDir(), "a.db"))

	path := writeTempYAML(t, "queue:\n  max_lease_minutes: 30\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Queue.MaxLeaseMinutes != 7 {
		t.Errorf("env must win over file: max_lease_minutes = %d", cfg.Queue.MaxLeaseMinutes)
	}
	if cfg.Queue.SweepIntervalSeconds != 2 {
		t.Errorf("sweep_interval_seconds = %d, want 2", cfg.Queue.SweepIntervalSeconds)
	}
	if cfg.Admin.Port != 7070 {
		t.Errorf("admin.port = %d, want 7070", cfg.Admin.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "s3cret" {
		t.Errorf("auth = %+v, want enabled with key", cfg.Auth)
	}
	if !cfg.Archive.Enabled {
		t.Error("LEASEQ_ARCHIVE_PATH must enable the archive")
	}
}

func TestLoad_MalformedEnvIgnored(t *testing.T) {
	t.Setenv("LEASEQ_ADMIN_PORT", "not-a-port")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Admin.Port != 8085 {
		t.Errorf("malformed env should be ignored, got port %d", cfg.Admin.Port)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Errorf("Default config should be valid, got: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero lease ceiling", func(c *config.Config) { c.Queue.MaxLeaseMinutes = 0 }},
		{"lease ceiling past a duration", func(c *config.Config) { c.Queue.MaxLeaseMinutes = queue.MaxLeaseMinutesLimit + 1 }},
		{"zero sweep interval", func(c *config.Config) { c.Queue.SweepIntervalSeconds = 0 }},
		{"negative max items", func(c *config.Config) { c.Queue.MaxItems = -1 }},
		{"port 0", func(c *config.Config) { c.Admin.Port = 0 }},
		{"port 99999", func(c *config.Config) { c.Admin.Port = 99999 }},
		{"rate without burst", func(c *config.Config) { c.Admin.Burst = 0 }},
		{"auth without key", func(c *config.Config) { c.Auth.Enabled = true }},
		{"archive without path", func(c *config.Config) { c.Archive.Enabled = true; c.Archive.Path = "" }},
		{"archive zero interval", func(c *config.Config) { c.Archive.Enabled = true; c.Archive.IntervalSeconds = 0 }},
		{"empty demo queue name", func(c *config.Config) { c.Demo.QueueName = "" }},
		{"unknown log format", func(c *config.Config) { c.Log.Format = "xml" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLogConfig_SlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (config.LogConfig{Level: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// writeTempYAML writes content to a temp file and returns its path.
func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writeTempYAML: %v", err)
	}
	return path
}
