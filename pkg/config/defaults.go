package config

import (
	"strings"
	"time"

	"github.com/depotfs/depotfs/internal/bytesize"
	"github.com/depotfs/depotfs/pkg/api"
	"github.com/depotfs/depotfs/pkg/fs"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced, explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API)
	applyStoreDefaults(cfg)
	applyCacheDefaults(&cfg.Cache)
	applyAuthDefaults(&cfg.Auth)
	applyLimitsDefaults(&cfg.Limits)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize for consistent internal representation.
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in).
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in).
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyAPIDefaults(cfg *api.APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

func applyStoreDefaults(cfg *Config) {
	if cfg.NodeStore.Type == "" {
		cfg.NodeStore.Type = "memory"
	}
	if cfg.MetaStore.Type == "" {
		cfg.MetaStore.Type = "memory"
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Type == "" {
		cfg.Type = "none"
	}
	if cfg.Type == "redis" && cfg.Redis.OpTimeout == 0 {
		cfg.Redis.OpTimeout = 250 * time.Millisecond
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 30 * 24 * time.Hour
	}
}

func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.NodeLimit == 0 {
		cfg.NodeLimit = bytesize.ByteSize(4 * bytesize.MiB)
	}
	if cfg.MaxWriteBytes == 0 {
		cfg.MaxWriteBytes = bytesize.ByteSize(fs.DefaultMaxWriteBytes)
	}
	if cfg.MaxRewriteEntries == 0 {
		cfg.MaxRewriteEntries = fs.DefaultMaxRewriteEntries
	}
}

// GetDefaultConfig returns a Config struct with all default values
// applied. Useful for generating sample configuration files and tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		NodeStore: NodeStoreConfig{Type: "memory"},
		MetaStore: MetaStoreConfig{Type: "memory"},
		Cache:     CacheConfig{Type: "none"},
	}
	ApplyDefaults(cfg)
	return cfg
}
