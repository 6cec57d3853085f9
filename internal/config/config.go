// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package config

import "time"

// Store backend kinds.
const (
	StoreCarto  = "carto"
	StoreDuckDB = "duckdb"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Logging  LoggingConfig   `koanf:"logging"`
	Server   ServerConfig    `koanf:"server"`
	Store    StoreConfig     `koanf:"store"`
	Catalog  CatalogConfig   `koanf:"catalog"`
	Runlog   RunlogConfig    `koanf:"runlog"`
	Events   EventsConfig    `koanf:"events"`
	Sync     SyncConfig      `koanf:"sync"`
	Datasets []DatasetConfig `koanf:"datasets" validate:"dive"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`

	// Format is json or console.
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// ServerConfig configures the ops HTTP API.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=0,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimitReqs requests per RateLimitWindow per client IP; 0 disables.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// StoreConfig selects and tunes the tabular store.
type StoreConfig struct {
	Kind      string `koanf:"kind" validate:"oneof=carto duckdb sqlite memory"`
	BatchSize int    `koanf:"batch_size" validate:"min=1,max=100000"`

	Carto CartoConfig `koanf:"carto"`
	SQL   SQLConfig   `koanf:"sql"`

	Retry          RetryConfig   `koanf:"retry"`
	CircuitBreaker BreakerConfig `koanf:"circuit_breaker"`
}

// CartoConfig holds CARTO SQL API settings.
type CartoConfig struct {
	User              string        `koanf:"user"`
	APIKey            string        `koanf:"api_key"`
	BaseURL           string        `koanf:"base_url" validate:"omitempty,url"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"min=0"`
}

// SQLConfig holds the embedded database settings for duckdb and sqlite.
type SQLConfig struct {
	// Path is the database file; empty means in-memory.
	Path string `koanf:"path"`
}

// RetryConfig is the store retry policy.
type RetryConfig struct {
	MaxAttempts  int           `koanf:"max_attempts" validate:"min=1,max=20"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
	Multiplier   float64       `koanf:"multiplier" validate:"gte=1"`
}

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"gte=0,lte=1"`
}

// CatalogConfig configures freshness reporting.
type CatalogConfig struct {
	Enabled bool          `koanf:"enabled"`
	BaseURL string        `koanf:"base_url" validate:"omitempty,url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

// RunlogConfig configures the run ledger.
type RunlogConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
	Keep     int    `koanf:"keep" validate:"min=1"`
}

// EventsConfig configures run event publishing.
type EventsConfig struct {
	Enabled     bool   `koanf:"enabled"`
	NATSURL     string `koanf:"nats_url"`
	TopicPrefix string `koanf:"topic_prefix"`
}

// SyncConfig holds defaults applied to every dataset.
type SyncConfig struct {
	Interval        time.Duration `koanf:"interval"`
	RunOnce         bool          `koanf:"run_once"`
	PagingTimeout   time.Duration `koanf:"paging_timeout"`
	FetchRetries    int           `koanf:"fetch_retries" validate:"min=0,max=20"`
	FetchRetryDelay time.Duration `koanf:"fetch_retry_delay"`
	MinPages        int           `koanf:"min_pages" validate:"min=0"`
	MaxPages        int           `koanf:"max_pages" validate:"min=1"`
}

// DatasetConfig describes one synchronized table.
type DatasetConfig struct {
	ID         string         `koanf:"id" validate:"required"`
	Table      string         `koanf:"table" validate:"required,identifier"`
	Schema     []ColumnConfig `koanf:"schema" validate:"min=1,dive"`
	UIDColumn  string         `koanf:"uid_column" validate:"required"`
	TimeColumn string         `koanf:"time_column" validate:"required"`

	UID UIDConfig `koanf:"uid"`

	// Columns maps column name to source path. Unmapped columns read the
	// source field of the same name.
	Columns map[string]string `koanf:"columns"`

	Retention  RetentionConfig  `koanf:"retention"`
	Pagination PaginationConfig `koanf:"pagination"`

	// Interval overrides sync.interval.
	Interval time.Duration `koanf:"interval"`

	Source SourceConfig `koanf:"source"`
}

// ColumnConfig is one schema column.
type ColumnConfig struct {
	Name string `koanf:"name" validate:"required,identifier"`
	Type string `koanf:"type" validate:"oneof=geometry text numeric timestamp"`
}

// UIDConfig selects the UID strategy.
type UIDConfig struct {
	Strategy  string   `koanf:"strategy" validate:"oneof=natural_key decimal_date content_hash"`
	Fields    []string `koanf:"fields"`
	Separator string   `koanf:"separator"`
	TimeField string   `koanf:"time_field"`
}

// RetentionConfig bounds the table.
type RetentionConfig struct {
	MaxRows int `koanf:"max_rows" validate:"min=0"`

	// MaxAge is an absolute cutoff timestamp.
	MaxAge string `koanf:"max_age"`

	// MaxAgeWindow is a rolling cutoff relative to the run time.
	MaxAgeWindow time.Duration `koanf:"max_age_window"`

	// Overflow is trim_table or truncate_batch; required when max_rows > 0.
	Overflow string `koanf:"overflow" validate:"omitempty,oneof=trim_table truncate_batch"`
}

// PaginationConfig overrides sync paging defaults. An unset page bound keeps
// the default; min_pages: 0 is an explicit override.
type PaginationConfig struct {
	MinPages *int `koanf:"min_pages" validate:"omitempty,min=0"`
	MaxPages *int `koanf:"max_pages" validate:"omitempty,min=1"`
	PageSize int  `koanf:"page_size" validate:"min=0"`
}

// SourceConfig configures the HTTP JSON source.
type SourceConfig struct {
	URL               string            `koanf:"url" validate:"required,url"`
	RecordsPath       string            `koanf:"records_path"`
	PageParam         string            `koanf:"page_param"`
	FirstPage         int               `koanf:"first_page"`
	SizeParam         string            `koanf:"size_param"`
	TokenParam        string            `koanf:"token_param"`
	NextTokenPath     string            `koanf:"next_token_path"`
	Headers           map[string]string `koanf:"headers"`
	RequestsPerSecond float64           `koanf:"requests_per_second" validate:"min=0"`
	Timeout           time.Duration     `koanf:"timeout"`
}
