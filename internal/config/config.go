// Package config holds all configuration types and loading logic for LeaseQ.
// Fields are only ever added, never renamed or removed.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/snehjoshi/leaseq/internal/queue"
)

// Config is the root configuration for a LeaseQ process.
type Config struct {
	Queue   QueueConfig   `yaml:"queue"`
	Admin   AdminConfig   `yaml:"admin"`
	Auth    AuthConfig    `yaml:"auth"`
	Metrics MetricsConfig `yaml:"metrics"`
	Archive ArchiveConfig `yaml:"archive"`
	Demo    DemoConfig    `yaml:"demo"`
	Log     LogConfig     `yaml:"log"`
}

// QueueConfig sets the defaults applied to every queue the process creates.
type QueueConfig struct {
	// MaxLeaseMinutes caps a lease. Take and RefreshLock requests outside
	// [1, MaxLeaseMinutes] get MaxLeaseMinutes.
	MaxLeaseMinutes int `yaml:"max_lease_minutes"`
	// SweepIntervalSeconds is the starting period of the expiry sweeper.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	// MaxItems bounds the primary queue. 0 = unbounded.
	MaxItems int `yaml:"max_items"`
}

// AdminConfig controls the read-only admin HTTP server.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	// RateLimit is requests per second per client IP. 0 disables limiting.
	RateLimit int `yaml:"rate_limit"`
	// Burst allows temporary spikes above RateLimit.
	Burst int `yaml:"burst"`
	// CORSOrigins lists allowed origins. "*" allows any.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns host:port.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// AuthConfig controls API key authentication on the admin server.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// MetricsConfig controls the /metrics endpoint on the admin server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ArchiveConfig controls periodic recording of queue dumps to disk.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// IntervalSeconds is how often every registered queue is snapshotted.
	IntervalSeconds int `yaml:"interval_seconds"`
	// Retain is the number of snapshots kept per queue. 0 keeps everything.
	Retain int `yaml:"retain"`
}

// DemoConfig drives the `leaseq demo` and `leaseq serve` workloads.
type DemoConfig struct {
	QueueName    string `yaml:"queue_name"`
	Items        int    `yaml:"items"`
	LeaseMinutes int    `yaml:"lease_minutes"`
	// SkipOneIn is the odds (1 in N) that a consumer skips confirmation and
	// lets the lease expire. 0 always confirms.
	SkipOneIn int `yaml:"skip_one_in"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	// Format is "json", "text", or "auto" (text on a terminal, JSON otherwise).
	Format string `yaml:"format"`
}

// SlogLevel maps Level to a slog.Level. Unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Default returns a Config populated with safe, sensible defaults.
// It is the canonical source of truth for default values.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			MaxLeaseMinutes:      20,
			SweepIntervalSeconds: 4,
			MaxItems:             0,
		},
		Admin: AdminConfig{
			Enabled:     false,
			Host:        "127.0.0.1",
			Port:        8085,
			RateLimit:   50,
			Burst:       100,
			CORSOrigins: []string{},
		},
		Auth: AuthConfig{
			Enabled: false,
			APIKey:  "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Archive: ArchiveConfig{
			Enabled:         false,
			Path:            "./leaseq-archive.db",
			IntervalSeconds: 30,
			Retain:          100,
		},
		Demo: DemoConfig{
			QueueName:    "Demo Queue",
			Items:        10,
			LeaseMinutes: 1,
			SkipOneIn:    7,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads a YAML config file at path and overlays it on top of Default().
// If path is empty or the file does not exist the default config is returned
// without error.
//
// After loading the file, environment variables are applied as overrides:
//
//	LEASEQ_MAX_LEASE_MINUTES       sets queue.max_lease_minutes
//	LEASEQ_SWEEP_INTERVAL_SECONDS  sets queue.sweep_interval_seconds
//	LEASEQ_ADMIN_PORT              sets admin.port
//	LEASEQ_API_KEY                 sets auth.api_key and enables auth
//	LEASEQ_ARCHIVE_PATH            sets archive.path and enables the archive
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variable overrides onto cfg. Malformed
// numbers are ignored.
func applyEnv(cfg *Config) {
	if n, ok := envInt("LEASEQ_MAX_LEASE_MINUTES"); ok {
		cfg.Queue.MaxLeaseMinutes = n
	}
	if n, ok := envInt("LEASEQ_SWEEP_INTERVAL_SECONDS"); ok {
		cfg.Queue.SweepIntervalSeconds = n
	}
	if n, ok := envInt("LEASEQ_ADMIN_PORT"); ok {
		cfg.Admin.Port = n
	}
	if v := os.Getenv("LEASEQ_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("LEASEQ_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
		cfg.Archive.Enabled = true
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Validate checks that the config values are consistent and within acceptable
// ranges. It returns the first error found.
func (c *Config) Validate() error {
	if c.Queue.MaxLeaseMinutes < 1 {
		return errors.New("queue.max_lease_minutes must be at least 1")
	}
	if c.Queue.MaxLeaseMinutes > queue.MaxLeaseMinutesLimit {
		return fmt.Errorf("queue.max_lease_minutes must be at most %d", queue.MaxLeaseMinutesLimit)
	}
	if c.Queue.SweepIntervalSeconds < 1 {
		return errors.New("queue.sweep_interval_seconds must be at least 1")
	}
	if c.Queue.MaxItems < 0 {
		return errors.New("queue.max_items must be >= 0")
	}
	if c.Admin.Port < 1 || c.Admin.Port > 65535 {
		return errors.New("admin.port must be between 1 and 65535")
	}
	if c.Admin.RateLimit < 0 || c.Admin.Burst < 0 {
		return errors.New("admin.rate_limit and admin.burst must be >= 0")
	}
	if c.Admin.RateLimit > 0 && c.Admin.Burst < 1 {
		return errors.New("admin.burst must be at least 1 when rate limiting is on")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if c.Archive.Enabled {
		if c.Archive.Path == "" {
			return errors.New("archive.path must not be empty")
		}
		if c.Archive.IntervalSeconds < 1 {
			return errors.New("archive.interval_seconds must be at least 1")
		}
	}
	if c.Archive.Retain < 0 {
		return errors.New("archive.retain must be >= 0")
	}
	if c.Demo.QueueName == "" {
		return errors.New("demo.queue_name must not be empty")
	}
	if c.Demo.Items < 0 {
		return errors.New("demo.items must be >= 0")
	}
	if c.Demo.SkipOneIn < 0 {
		return errors.New("demo.skip_one_in must be >= 0")
	}
	switch c.Log.Format {
	case "", "auto", "json", "text":
	default:
		return errors.New(`log.format must be one of "auto", "json", "text"`)
	}
	return nil
}
