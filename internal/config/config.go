package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// devJWTSecret signs tokens when SENSEI_DEV_MODE is set and no secret is given.
const devJWTSecret = "sensei-dev-secret"

// Config holds the settings of both the hosted API and the device client.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Client   ClientConfig   `yaml:"client"`
}

// ServerConfig configures `sensei serve`.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the hosted store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`
	DSN    string `yaml:"-"` // env-only, carries credentials
}

// AuthConfig configures JWT signing for the hosted API.
type AuthConfig struct {
	JWTSecret string   `yaml:"-"` // env-only, never in YAML
	TokenTTL  Duration `yaml:"token_ttl"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ClientConfig configures the device-side sync client used by the local
// subcommands.
type ClientConfig struct {
	LocalPath          string   `yaml:"local_path"`
	RemoteURL          string   `yaml:"remote_url"`
	Token              string   `yaml:"-"` // env-only, never in YAML
	UserID             string   `yaml:"user_id"`
	SyncInterval       Duration `yaml:"sync_interval"`
	ProbeInterval      Duration `yaml:"probe_interval"`
	CompactInterval    Duration `yaml:"compact_interval"`
	QueueCapacity      int      `yaml:"queue_capacity"`
	PruneRemoteDeletes bool     `yaml:"prune_remote_deletes"`
}

// Duration is a time.Duration written as "30s" or "5m" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load reads the config file named by SENSEI_CONFIG_PATH, then applies
// SENSEI_* environment overrides on top of the defaults.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("SENSEI_CONFIG_PATH", "config/sensei.yaml")

	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile is like Load but reads path, which must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns the built-in settings.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "data/sensei.db",
		},
		Auth: AuthConfig{
			TokenTTL: Duration(30 * 24 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Client: ClientConfig{
			LocalPath:       "data/device.db",
			RemoteURL:       "http://localhost:8080",
			SyncInterval:    Duration(5 * time.Minute),
			ProbeInterval:   Duration(30 * time.Second),
			CompactInterval: Duration(1 * time.Hour),
			QueueCapacity:   1000,
		},
	}
}

// loadYAMLFile merges path into cfg. A missing file leaves cfg unchanged.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides copies set SENSEI_* variables over cfg.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("SENSEI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("SENSEI_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SENSEI_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SENSEI_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	if v := os.Getenv("SENSEI_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SENSEI_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SENSEI_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Auth
	if v := os.Getenv("SENSEI_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	envDuration("SENSEI_TOKEN_TTL", &cfg.Auth.TokenTTL)
	if cfg.Auth.JWTSecret == "" && devMode() {
		cfg.Auth.JWTSecret = devJWTSecret
	}

	// Log
	if v := os.Getenv("SENSEI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SENSEI_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Client
	if v := os.Getenv("SENSEI_LOCAL_PATH"); v != "" {
		cfg.Client.LocalPath = v
	}
	if v := os.Getenv("SENSEI_REMOTE_URL"); v != "" {
		cfg.Client.RemoteURL = v
	}
	if v := os.Getenv("SENSEI_TOKEN"); v != "" {
		cfg.Client.Token = v
	}
	if v := os.Getenv("SENSEI_USER_ID"); v != "" {
		cfg.Client.UserID = v
	}
	envDuration("SENSEI_SYNC_INTERVAL", &cfg.Client.SyncInterval)
	envDuration("SENSEI_PROBE_INTERVAL", &cfg.Client.ProbeInterval)
	envDuration("SENSEI_COMPACT_INTERVAL", &cfg.Client.CompactInterval)
	if v := os.Getenv("SENSEI_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Client.QueueCapacity = n
		}
	}
	if v := os.Getenv("SENSEI_PRUNE_REMOTE_DELETES"); v != "" {
		cfg.Client.PruneRemoteDeletes = v == "true" || v == "1"
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// validate checks the settings every command relies on.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("SENSEI_DATABASE_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Client.QueueCapacity < 0 {
		return errors.New("client.queue_capacity must not be negative")
	}
	return nil
}

// ValidateServer checks the settings the API server needs.
// In dev mode (SENSEI_DEV_MODE=true) a fixed JWT secret is used instead.
func (c *Config) ValidateServer() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("SENSEI_JWT_SECRET is required")
	}
	return nil
}

func devMode() bool {
	return os.Getenv("SENSEI_DEV_MODE") == "true"
}

// getEnv returns os.Getenv(key), or defaultValue when unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
