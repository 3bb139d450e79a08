// Package config loads, defaults and validates the server configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/depotfs/depotfs/internal/bytesize"
	"github.com/depotfs/depotfs/pkg/api"
)

// Config represents the DepotFS server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DEPOTFS_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the HTTP API server configuration
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// NodeStore configures the content-addressed node backend
	NodeStore NodeStoreConfig `mapstructure:"node_store" yaml:"node_store"`

	// MetaStore configures the metastore backend holding delegates,
	// depots, tickets, ownership and usage records
	MetaStore MetaStoreConfig `mapstructure:"meta_store" yaml:"meta_store"`

	// Cache configures the optional lookup cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Auth configures token issuance for delegates
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Limits configures node and request size bounds
	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use a non-TLS connection.
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the standalone metrics endpoint.
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// NodeStoreConfig selects and configures the node storage backend.
type NodeStoreConfig struct {
	// Type selects the backend: memory, badger, or s3
	Type string `mapstructure:"type" validate:"required,oneof=memory badger s3" yaml:"type"`

	// Badger configures the badger backend
	Badger BadgerConfig `mapstructure:"badger" yaml:"badger,omitempty"`

	// S3 configures the s3 backend
	S3 S3Config `mapstructure:"s3" yaml:"s3,omitempty"`
}

// MetaStoreConfig selects and configures the metastore backend.
type MetaStoreConfig struct {
	// Type selects the backend: memory or badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger" yaml:"type"`

	// Badger configures the badger backend
	Badger BadgerConfig `mapstructure:"badger" yaml:"badger,omitempty"`
}

// BadgerConfig configures a BadgerDB database.
type BadgerConfig struct {
	// Dir is the database directory
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// S3Config configures an S3 (or S3-compatible) bucket.
type S3Config struct {
	// Bucket is the bucket name
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region (optional, SDK default if empty)
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint is a custom endpoint URL for S3-compatible services
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// KeyPrefix is prepended to all object keys
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// ForcePathStyle forces path-style addressing (MinIO, Localstack)
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// CacheConfig selects and configures the lookup cache.
//
// The cache is never authoritative: any type here, including "none",
// yields identical observable behavior for every operation sequence.
type CacheConfig struct {
	// Type selects the cache: none, memory, or redis
	Type string `mapstructure:"type" validate:"required,oneof=none memory redis" yaml:"type"`

	// Redis configures the redis cache
	Redis RedisConfig `mapstructure:"redis" yaml:"redis,omitempty"`
}

// RedisConfig configures a Redis connection.
type RedisConfig struct {
	// Addr is the host:port of the Redis server
	Addr string `mapstructure:"addr" yaml:"addr"`

	// Password is optional
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// DB selects the Redis logical database
	DB int `mapstructure:"db" yaml:"db,omitempty"`

	// OpTimeout bounds every cache call.
	// Default: 250ms
	OpTimeout time.Duration `mapstructure:"op_timeout" yaml:"op_timeout,omitempty"`
}

// AuthConfig configures delegate token issuance.
type AuthConfig struct {
	// JWTSecret signs access and refresh tokens. Required for serving.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// AccessTokenTTL is the access token lifetime.
	// Default: 15m
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" yaml:"access_token_ttl"`

	// RefreshTokenTTL is the refresh token lifetime.
	// Default: 720h (30 days)
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl" yaml:"refresh_token_ttl"`
}

// LimitsConfig configures size bounds.
type LimitsConfig struct {
	// NodeLimit is the maximum encoded node size. File content larger
	// than one node spills into successor nodes.
	// Supports human-readable sizes: "4MiB", "1Mi".
	// Default: 4MiB
	NodeLimit bytesize.ByteSize `mapstructure:"node_limit" yaml:"node_limit,omitempty"`

	// MaxWriteBytes is the maximum file content size per write.
	// Default: 4MiB
	MaxWriteBytes bytesize.ByteSize `mapstructure:"max_write_bytes" yaml:"max_write_bytes,omitempty"`

	// MaxRewriteEntries is the maximum entry count in one rewrite batch.
	// Default: 1000
	MaxRewriteEntries int `mapstructure:"max_rewrite_entries" yaml:"max_rewrite_entries,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file
// is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  depotfs init\n\n"+
				"Or specify a custom config file:\n"+
				"  depotfs <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  depotfs init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600 because the config may hold the JWT secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variables and config file search.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DEPOTFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DEPOTFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize,
// so config files can say "4MiB" or a plain number.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path, preferring
// XDG_CONFIG_HOME, then ~/.config, then the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "depotfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "depotfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
