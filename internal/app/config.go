// Package app provides the application initialization and wiring.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/berth/internal/adapters/in/http/api"
	"github.com/bnema/berth/internal/adapters/out/docker"
	"github.com/bnema/berth/internal/adapters/out/eventbus"
	"github.com/bnema/berth/internal/adapters/out/ratelimit"
	"github.com/bnema/berth/internal/adapters/out/telemetry"
	"github.com/bnema/berth/internal/logging"
	"github.com/bnema/berth/internal/usecase/lifecycle"
)

// Runtime drivers selectable with runtime.driver.
const (
	DriverDocker    = "docker"
	DriverSimulated = "simulated"
)

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Runtime   RuntimeConfig    `mapstructure:"runtime"`
	Lifecycle lifecycle.Config `mapstructure:"lifecycle"`
	Events    eventbus.Config  `mapstructure:"events"`
	Store     StoreConfig      `mapstructure:"store"`
	Journal   JournalConfig    `mapstructure:"journal"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
	Logging   logging.Config   `mapstructure:"logging"`
}

// ServerConfig is the [server] section.
type ServerConfig struct {
	api.ServerConfig `mapstructure:",squash"`
	RateLimit        ratelimit.Config `mapstructure:"rate_limit"`
}

// RuntimeConfig is the [runtime] section.
type RuntimeConfig struct {
	Driver        string `mapstructure:"driver"`
	Seed          bool   `mapstructure:"seed"`
	docker.Config `mapstructure:",squash"`
}

// StoreConfig is the [store] section.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Buffer  int    `mapstructure:"buffer"`
}

// JournalConfig is the [journal] section.
type JournalConfig struct {
	logging.FileConfig `mapstructure:",squash"`
	Buffer             int `mapstructure:"buffer"`
}

// DefaultDataDir returns the default data directory path.
// Uses ~/.local/share/berth for user installations, /var/lib/berth as fallback.
func DefaultDataDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "berth")
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share", "berth")
	}
	return "/var/lib/berth"
}

// ConfigureViper sets up viper with standard config file search paths.
// Config file: berth.toml
// Search paths (in order): current directory, $XDG_CONFIG_HOME/berth, /etc/berth
func ConfigureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName("berth")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "berth"))
	}
	v.AddConfigPath("/etc/berth")
}

func setDefaults(v *viper.Viper) {
	lc := lifecycle.DefaultConfig()

	v.SetDefault("server.addr", "127.0.0.1:7420")
	v.SetDefault("server.token", "")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.allowed_cidrs", []string{})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.events.stream_buffer", 64)
	v.SetDefault("server.events.heartbeat", 15*time.Second)
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.rps", 20)
	v.SetDefault("server.rate_limit.burst", 40)
	v.SetDefault("server.rate_limit.idle_ttl", 10*time.Minute)

	v.SetDefault("runtime.driver", DriverDocker)
	v.SetDefault("runtime.seed", false)
	v.SetDefault("runtime.docker_host", "")
	v.SetDefault("runtime.stop_timeout", 10*time.Second)
	v.SetDefault("runtime.adopt_all", false)

	v.SetDefault("lifecycle.operation_timeout", lc.OperationTimeout)
	v.SetDefault("lifecycle.reconcile_interval", lc.ReconcileInterval)
	v.SetDefault("lifecycle.reconcile_concurrency", lc.ReconcileConcurrency)
	v.SetDefault("lifecycle.drift_grace", lc.DriftGrace)
	v.SetDefault("lifecycle.tombstone_retention", lc.TombstoneRetention)
	v.SetDefault("lifecycle.sweep_interval", lc.SweepInterval)
	v.SetDefault("lifecycle.retry.max_attempts", lc.Retry.MaxAttempts)
	v.SetDefault("lifecycle.retry.initial_interval", lc.Retry.InitialInterval)
	v.SetDefault("lifecycle.retry.max_interval", lc.Retry.MaxInterval)

	v.SetDefault("events.buffer_size", 256)
	v.SetDefault("events.enqueue_timeout", 100*time.Millisecond)
	v.SetDefault("events.subscriber_buffer", 64)

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", filepath.Join(DefaultDataDir(), "berth.db"))
	v.SetDefault("store.buffer", 256)

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", filepath.Join(DefaultDataDir(), "events.log"))
	v.SetDefault("journal.max_size", 50)
	v.SetDefault("journal.max_backups", 5)
	v.SetDefault("journal.max_age", 28)
	v.SetDefault("journal.compress", true)
	v.SetDefault("journal.buffer", 256)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.auth_token", "")
	v.SetDefault("telemetry.interval", time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", filepath.Join(DefaultDataDir(), "logs", "berth.log"))
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)
	v.SetDefault("logging.file.compress", true)
}

// loadConfig reads defaults, the config file (if any) and BERTH_* env overrides.
func loadConfig(v *viper.Viper, configPath string) error {
	setDefaults(v)
	ConfigureViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("BERTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}

// initConfig loads and validates the configuration.
func initConfig(configPath string) (*viper.Viper, Config, error) {
	v := viper.New()
	if err := loadConfig(v, configPath); err != nil {
		return nil, Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, Config{}, err
	}
	return v, cfg, nil
}

func (c Config) validate() error {
	switch c.Runtime.Driver {
	case DriverDocker, DriverSimulated:
	default:
		return fmt.Errorf("invalid runtime.driver %q: expected %q or %q", c.Runtime.Driver, DriverDocker, DriverSimulated)
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store.enabled requires store.path")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.enabled requires journal.path")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	return nil
}
