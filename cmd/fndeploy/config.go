package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Platform PlatformConfig `mapstructure:"platform"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Versions VersionsConfig `mapstructure:"versions"`
	Triggers TriggersConfig `mapstructure:"triggers"`
	Bucket   BucketConfig   `mapstructure:"bucket"`
	Runtimes RuntimesConfig `mapstructure:"runtimes"`
	Log      LogConfig      `mapstructure:"log"`
}

// PlatformConfig locates the functions platform and the target namespace.
type PlatformConfig struct {
	APIHost   string        `mapstructure:"apihost"`
	Auth      string        `mapstructure:"auth"`
	Namespace string        `mapstructure:"namespace"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DeployConfig tunes the deployment engine.
type DeployConfig struct {
	// ChunkSize bounds concurrent platform operations.
	// Also read from DEPLOYMENT_CHUNK_SIZE.
	ChunkSize    int           `mapstructure:"chunk_size"`
	BuildTimeout time.Duration `mapstructure:"build_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// VersionsConfig selects where version entries are kept between runs.
type VersionsConfig struct {
	// Backend is "file" (the project's .deployer directory) or "sqlite".
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// TriggersConfig selects the trigger backend. With both fields set the
// Functions API is used; otherwise triggers go through helper actions.
type TriggersConfig struct {
	APIEndpoint string `mapstructure:"api_endpoint"`
	APIToken    string `mapstructure:"api_token"`
}

// BucketConfig holds the storage bucket for web content.
type BucketConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Name      string `mapstructure:"name"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// RuntimesConfig controls the runtime catalog cache.
type RuntimesConfig struct {
	// Enabled validates action runtimes against the API host's catalog.
	Enabled  bool          `mapstructure:"enabled"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("platform.apihost", "")
	v.SetDefault("platform.auth", "")
	v.SetDefault("platform.namespace", "_")
	v.SetDefault("platform.timeout", "60s")
	v.SetDefault("deploy.chunk_size", 25)
	v.SetDefault("deploy.build_timeout", "15m")
	v.SetDefault("deploy.poll_interval", "5s")
	v.SetDefault("versions.backend", "file")
	v.SetDefault("versions.dsn", "")
	v.SetDefault("triggers.api_endpoint", "")
	v.SetDefault("triggers.api_token", "")
	v.SetDefault("bucket.enabled", false)
	v.SetDefault("bucket.endpoint", "")
	v.SetDefault("bucket.region", "us-east-1")
	v.SetDefault("bucket.name", "")
	v.SetDefault("bucket.access_key", "")
	v.SetDefault("bucket.secret_key", "")
	v.SetDefault("runtimes.enabled", true)
	v.SetDefault("runtimes.cache_ttl", "1h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// A missing file falls back to defaults
		}
	}

	v.SetEnvPrefix("FNDEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names the platform tooling already exports
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"deploy.chunk_size":     {"FNDEPLOY_DEPLOY_CHUNK_SIZE", "DEPLOYMENT_CHUNK_SIZE"},
		"triggers.api_endpoint": {"FNDEPLOY_TRIGGERS_API_ENDPOINT", "TRIGGER_API_ENDPOINT"},
		"triggers.api_token":    {"FNDEPLOY_TRIGGERS_API_TOKEN", "DO_API_KEY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks the settings a deployment cannot run without.
func (c *Config) Validate() error {
	if c.Platform.APIHost == "" {
		return errors.New("platform.apihost is required")
	}
	if c.Platform.Auth == "" {
		return errors.New("platform.auth is required")
	}
	switch c.Versions.Backend {
	case "file":
	case "sqlite":
		if c.Versions.DSN == "" {
			return errors.New("versions.dsn is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown versions.backend %q", c.Versions.Backend)
	}
	if c.Bucket.Enabled && c.Bucket.Name == "" {
		return errors.New("bucket.name is required when the bucket is enabled")
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format. Logs go
// to stderr; stdout carries the deployment report.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
