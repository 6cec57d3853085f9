// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/nrtsync/config.yaml",
	"/etc/nrtsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
		},
		Store: StoreConfig{
			Kind:      StoreMemory,
			BatchSize: 1000,
			Carto: CartoConfig{
				Timeout:           2 * time.Minute,
				RequestsPerSecond: 5,
			},
			Retry: RetryConfig{
				MaxAttempts:  4,
				InitialDelay: 500 * time.Millisecond,
				MaxDelay:     30 * time.Second,
				Multiplier:   2,
			},
			CircuitBreaker: BreakerConfig{
				Enabled:      true,
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      2 * time.Minute,
				MinRequests:  10,
				FailureRatio: 0.6,
			},
		},
		Catalog: CatalogConfig{
			Enabled: false,
			Timeout: 30 * time.Second,
		},
		Runlog: RunlogConfig{
			Enabled: true,
			Path:    "/data/runlog",
			Keep:    100,
		},
		Events: EventsConfig{
			Enabled: false,
		},
		Sync: SyncConfig{
			Interval:        5 * time.Minute,
			RunOnce:         false,
			PagingTimeout:   10 * time.Minute,
			FetchRetries:    3,
			FetchRetryDelay: 2 * time.Second,
			MinPages:        1,
			MaxPages:        50,
		},
	}
}

// Load loads configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file path; empty skips the file.
func LoadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the config file to load, or "" if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// HTTP server
	"http_enabled":           "server.enabled",
	"http_host":              "server.host",
	"http_port":              "server.port",
	"http_read_timeout":      "server.read_timeout",
	"http_write_timeout":     "server.write_timeout",
	"http_shutdown_timeout":  "server.shutdown_timeout",
	"http_rate_limit_reqs":   "server.rate_limit_reqs",
	"http_rate_limit_window": "server.rate_limit_window",

	// Store
	"store_kind":                    "store.kind",
	"store_batch_size":              "store.batch_size",
	"carto_user":                    "store.carto.user",
	"carto_api_key":                 "store.carto.api_key",
	"carto_base_url":                "store.carto.base_url",
	"carto_timeout":                 "store.carto.timeout",
	"carto_requests_per_second":     "store.carto.requests_per_second",
	"sql_path":                      "store.sql.path",
	"store_retry_max_attempts":      "store.retry.max_attempts",
	"store_retry_initial_delay":     "store.retry.initial_delay",
	"store_retry_max_delay":         "store.retry.max_delay",
	"circuit_breaker_enabled":       "store.circuit_breaker.enabled",
	"circuit_breaker_timeout":       "store.circuit_breaker.timeout",
	"circuit_breaker_failure_ratio": "store.circuit_breaker.failure_ratio",

	// Catalog
	"catalog_enabled":  "catalog.enabled",
	"catalog_base_url": "catalog.base_url",
	"catalog_token":    "catalog.token",
	"catalog_timeout":  "catalog.timeout",

	// Run ledger
	"runlog_enabled":   "runlog.enabled",
	"runlog_path":      "runlog.path",
	"runlog_in_memory": "runlog.in_memory",
	"runlog_keep":      "runlog.keep",

	// Events
	"events_enabled":      "events.enabled",
	"nats_url":            "events.nats_url",
	"events_topic_prefix": "events.topic_prefix",

	// Sync defaults
	"sync_interval":          "sync.interval",
	"sync_run_once":          "sync.run_once",
	"sync_paging_timeout":    "sync.paging_timeout",
	"sync_fetch_retries":     "sync.fetch_retries",
	"sync_fetch_retry_delay": "sync.fetch_retry_delay",
	"sync_min_pages":         "sync.min_pages",
	"sync_max_pages":         "sync.max_pages",
}

// envTransformFunc maps an environment variable to its koanf path. Unmapped
// variables return "" and are skipped, so unrelated environment does not
// pollute the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
