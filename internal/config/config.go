// Package config provides configuration management for the highlighting
// service using Viper for flexible loading from files, environment
// variables, and command-line flags.
//
// Sources in precedence order: command-line flags, PRISMD_-prefixed
// environment variables (PRISMD_SERVER_PORT, PRISMD_POOL_MAX_WORKERS, ...),
// then an optional .prismd.yml file. Every loaded value is validated before
// the server starts; a request can never widen these limits at runtime.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Pool      PoolConfig      `yaml:"pool"`
	Timeout   TimeoutConfig   `yaml:"timeout"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// MaxRequestBytes caps the whole request payload; exceeding it is a
	// whole-request rejection, never a per-file failure.
	MaxRequestBytes int64 `yaml:"max_request_bytes"`
	// MaxFileBytes caps any single file's contents.
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	// MaxConns bounds concurrently accepted connections.
	MaxConns int `yaml:"max_conns"`
}

type PoolConfig struct {
	// MaxWorkers bounds concurrently executing highlight jobs.
	MaxWorkers int `yaml:"max_workers"`
	// QueueDepth is the FIFO admission queue capacity.
	QueueDepth int `yaml:"queue_depth"`
	// IdleTimeout is how long a spawned worker waits for work before
	// exiting, letting the pool shrink under light load.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type TimeoutConfig struct {
	// DefaultMS applies per file when a request omits a timeout.
	DefaultMS int64 `yaml:"default_ms"`
	// MaxMS is the largest per-file timeout a request may ask for;
	// larger values reject the whole request.
	MaxMS int64 `yaml:"max_ms"`
}

type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DefaultMaxRequestBytes = 2 << 30   // 2 GiB
	DefaultMaxFileBytes    = 256 << 20 // 256 MiB
	DefaultMaxWorkers      = 512
	DefaultTimeoutMS       = 30_000
	DefaultMaxTimeoutMS    = 120_000
)

// Default returns a fully-populated configuration with shipped defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8443,
			Host:            "0.0.0.0",
			MaxRequestBytes: DefaultMaxRequestBytes,
			MaxFileBytes:    DefaultMaxFileBytes,
			MaxConns:        1024,
		},
		Pool: PoolConfig{
			MaxWorkers:  DefaultMaxWorkers,
			QueueDepth:  4096,
			IdleTimeout: 30 * time.Second,
		},
		Timeout: TimeoutConfig{
			DefaultMS: DefaultTimeoutMS,
			MaxMS:     DefaultMaxTimeoutMS,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from viper's merged sources on top of defaults and
// validates it.
func Load() (*Config, error) {
	cfg := Default()

	if viper.IsSet("server.port") {
		cfg.Server.Port = viper.GetInt("server.port")
	}
	if viper.IsSet("server.host") {
		cfg.Server.Host = viper.GetString("server.host")
	}
	if viper.IsSet("server.max_request_bytes") {
		cfg.Server.MaxRequestBytes = viper.GetInt64("server.max_request_bytes")
	}
	if viper.IsSet("server.max_file_bytes") {
		cfg.Server.MaxFileBytes = viper.GetInt64("server.max_file_bytes")
	}
	if viper.IsSet("server.max_conns") {
		cfg.Server.MaxConns = viper.GetInt("server.max_conns")
	}
	if viper.IsSet("pool.max_workers") {
		cfg.Pool.MaxWorkers = viper.GetInt("pool.max_workers")
	}
	if viper.IsSet("pool.queue_depth") {
		cfg.Pool.QueueDepth = viper.GetInt("pool.queue_depth")
	}
	if viper.IsSet("pool.idle_timeout") {
		cfg.Pool.IdleTimeout = viper.GetDuration("pool.idle_timeout")
	}
	if viper.IsSet("timeout.default_ms") {
		cfg.Timeout.DefaultMS = viper.GetInt64("timeout.default_ms")
	}
	if viper.IsSet("timeout.max_ms") {
		cfg.Timeout.MaxMS = viper.GetInt64("timeout.max_ms")
	}
	if viper.IsSet("telemetry.enabled") {
		cfg.Telemetry.Enabled = viper.GetBool("telemetry.enabled")
	}
	if viper.IsSet("log.level") {
		cfg.Log.Level = viper.GetString("log.level")
	}
	if viper.IsSet("log.format") {
		cfg.Log.Format = viper.GetString("log.format")
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration values for correctness.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is not in valid range 0-65535", cfg.Server.Port)
	}
	if cfg.Server.MaxRequestBytes <= 0 {
		return fmt.Errorf("server.max_request_bytes must be positive, got %d", cfg.Server.MaxRequestBytes)
	}
	if cfg.Server.MaxFileBytes <= 0 || cfg.Server.MaxFileBytes > cfg.Server.MaxRequestBytes {
		return fmt.Errorf("server.max_file_bytes %d must be positive and no larger than max_request_bytes %d",
			cfg.Server.MaxFileBytes, cfg.Server.MaxRequestBytes)
	}
	if cfg.Server.MaxConns <= 0 {
		return fmt.Errorf("server.max_conns must be positive, got %d", cfg.Server.MaxConns)
	}
	if cfg.Pool.MaxWorkers <= 0 {
		return fmt.Errorf("pool.max_workers must be positive, got %d", cfg.Pool.MaxWorkers)
	}
	if cfg.Pool.QueueDepth <= 0 {
		return fmt.Errorf("pool.queue_depth must be positive, got %d", cfg.Pool.QueueDepth)
	}
	if cfg.Pool.IdleTimeout <= 0 {
		return fmt.Errorf("pool.idle_timeout must be positive, got %s", cfg.Pool.IdleTimeout)
	}
	if cfg.Timeout.DefaultMS <= 0 {
		return fmt.Errorf("timeout.default_ms must be positive, got %d", cfg.Timeout.DefaultMS)
	}
	if cfg.Timeout.MaxMS < cfg.Timeout.DefaultMS {
		return fmt.Errorf("timeout.max_ms %d must be at least timeout.default_ms %d",
			cfg.Timeout.MaxMS, cfg.Timeout.DefaultMS)
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return nil
}

// DefaultTimeout returns the configured default per-file timeout.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Timeout.DefaultMS) * time.Millisecond
}

// MaxTimeout returns the configured maximum per-file timeout.
func (c *Config) MaxTimeout() time.Duration {
	return time.Duration(c.Timeout.MaxMS) * time.Millisecond
}
