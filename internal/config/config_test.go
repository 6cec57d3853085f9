// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package config

import (
	"strings"
	"testing"
	"time"

	nsync "github.com/tomtom215/nrtsync/internal/sync"
)

func intPtr(n int) *int { return &n }

func validDataset() DatasetConfig {
	return DatasetConfig{
		ID:    "quakes",
		Table: "earthquakes",
		Schema: []ColumnConfig{
			{Name: "uid", Type: "text"},
			{Name: "time", Type: "timestamp"},
			{Name: "mag", Type: "numeric"},
			{Name: "the_geom", Type: "geometry"},
		},
		UIDColumn:  "uid",
		TimeColumn: "time",
		UID:        UIDConfig{Strategy: "natural_key", Fields: []string{"id"}},
		Columns:    map[string]string{"mag": "properties.mag", "the_geom": "point(lon,lat)"},
		Retention:  RetentionConfig{MaxRows: 1000, Overflow: "trim_table"},
		Source:     SourceConfig{URL: "https://example.com/feed.json"},
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Datasets = []DatasetConfig{validDataset()}
	return cfg
}

func TestDefaultConfig_Valid(t *testing.T) {
	t.Parallel()
	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
		{
			name:    "unknown store kind",
			mutate:  func(c *Config) { c.Store.Kind = "postgres" },
			wantErr: "store.kind",
		},
		{
			name:    "carto without credentials",
			mutate:  func(c *Config) { c.Store.Kind = StoreCarto },
			wantErr: "store.carto.user is required",
		},
		{
			name:    "catalog without base url",
			mutate:  func(c *Config) { c.Catalog.Enabled = true },
			wantErr: "catalog.base_url is required",
		},
		{
			name: "runlog without path",
			mutate: func(c *Config) {
				c.Runlog.Path = ""
			},
			wantErr: "runlog.path is required",
		},
		{
			name: "duplicate dataset id",
			mutate: func(c *Config) {
				c.Datasets = append(c.Datasets, validDataset())
			},
			wantErr: "duplicate dataset id",
		},
		{
			name: "two datasets share a table",
			mutate: func(c *Config) {
				d := validDataset()
				d.ID = "quakes-copy"
				d.Table = strings.ToUpper(c.Datasets[0].Table)
				c.Datasets = append(c.Datasets, d)
			},
			wantErr: "is already used by dataset",
		},
		{
			name: "invalid table identifier",
			mutate: func(c *Config) {
				c.Datasets[0].Table = "drop table;"
			},
			wantErr: "datasets[0].table",
		},
		{
			name: "uid column wrong type",
			mutate: func(c *Config) {
				c.Datasets[0].UIDColumn = "mag"
			},
			wantErr: "must be text",
		},
		{
			name: "time column missing",
			mutate: func(c *Config) {
				c.Datasets[0].TimeColumn = "updated"
			},
			wantErr: "is not in the schema",
		},
		{
			name: "max rows without overflow",
			mutate: func(c *Config) {
				c.Datasets[0].Retention.Overflow = ""
			},
			wantErr: "retention.overflow is required",
		},
		{
			name: "max age unparseable",
			mutate: func(c *Config) {
				c.Datasets[0].Retention.MaxAge = "last tuesday"
			},
			wantErr: "retention.max_age",
		},
		{
			name: "max age with window",
			mutate: func(c *Config) {
				c.Datasets[0].Retention.MaxAge = "2024-01-01T00:00:00Z"
				c.Datasets[0].Retention.MaxAgeWindow = time.Hour
			},
			wantErr: "mutually exclusive",
		},
		{
			name: "min pages above max pages",
			mutate: func(c *Config) {
				c.Datasets[0].Pagination = PaginationConfig{MinPages: intPtr(10), MaxPages: intPtr(5)}
			},
			wantErr: "pagination.min_pages",
		},
		{
			name: "unknown uid strategy",
			mutate: func(c *Config) {
				c.Datasets[0].UID.Strategy = "random"
			},
			wantErr: "datasets[0].uid.strategy",
		},
		{
			name: "mapping for unknown column",
			mutate: func(c *Config) {
				c.Datasets[0].Columns["depth"] = "properties.depth"
			},
			wantErr: `columns: "depth"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildDataset(t *testing.T) {
	t.Parallel()

	d := validDataset()
	d.Pagination.MaxPages = intPtr(7)
	defaults := defaultConfig().Sync

	ds, err := BuildDataset(d, defaults)
	if err != nil {
		t.Fatalf("BuildDataset: %v", err)
	}
	if ds.ID != "quakes" || ds.Table != "earthquakes" {
		t.Errorf("identity = %s/%s", ds.ID, ds.Table)
	}
	if ds.Schema.Len() != 4 {
		t.Errorf("schema len = %d, want 4", ds.Schema.Len())
	}
	if ds.MaxPages != 7 {
		t.Errorf("MaxPages = %d, want override 7", ds.MaxPages)
	}
	if ds.MinPages != defaults.MinPages {
		t.Errorf("MinPages = %d, want default %d", ds.MinPages, defaults.MinPages)
	}
	if ds.PagingTimeout != defaults.PagingTimeout {
		t.Errorf("PagingTimeout = %v, want %v", ds.PagingTimeout, defaults.PagingTimeout)
	}
	if ds.Retention.Overflow != nsync.OverflowTrimTable || ds.Retention.MaxRows != 1000 {
		t.Errorf("retention = %+v", ds.Retention)
	}

	row, err := ds.Translator.Translate(map[string]any{
		"id":         "us1",
		"time":       "2024-03-01T00:00:00Z",
		"lon":        -120.5,
		"lat":        35.25,
		"properties": map[string]any{"mag": 4.2},
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if row[2] != 4.2 {
		t.Errorf("mag = %v, want 4.2", row[2])
	}

	id, err := ds.UID(map[string]any{"id": "us1"})
	if err != nil || id != "us1" {
		t.Errorf("uid = %q, %v", id, err)
	}
}

func TestBuildDataset_MaxAge(t *testing.T) {
	t.Parallel()

	d := validDataset()
	d.Retention = RetentionConfig{MaxAge: "2024-01-01T00:00:00Z"}
	ds, err := BuildDataset(d, defaultConfig().Sync)
	if err != nil {
		t.Fatalf("BuildDataset: %v", err)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !ds.Retention.MaxAge.Equal(want) {
		t.Errorf("MaxAge = %v, want %v", ds.Retention.MaxAge, want)
	}
}

func TestBuildDataset_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(d *DatasetConfig)
	}{
		{"bad column type", func(d *DatasetConfig) { d.Schema[2].Type = "blob" }},
		{"natural key without fields", func(d *DatasetConfig) { d.UID.Fields = nil }},
		{"retention conflict", func(d *DatasetConfig) { d.Retention.Overflow = "" }},
		{"uid column not text", func(d *DatasetConfig) { d.UIDColumn = "mag" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := validDataset()
			tt.mutate(&d)
			if _, err := BuildDataset(d, defaultConfig().Sync); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDatasetConfig_Fetcher(t *testing.T) {
	t.Parallel()

	d := validDataset()
	if _, err := d.Fetcher(); err != nil {
		t.Fatalf("Fetcher: %v", err)
	}
	d.Source.TokenParam = "cursor"
	if _, err := d.Fetcher(); err == nil {
		t.Fatal("expected error for token_param without next_token_path")
	}
}

func TestDatasetConfig_IntervalOr(t *testing.T) {
	t.Parallel()

	d := validDataset()
	if got := d.IntervalOr(time.Minute); got != time.Minute {
		t.Errorf("IntervalOr = %v, want fallback", got)
	}
	d.Interval = 30 * time.Second
	if got := d.IntervalOr(time.Minute); got != 30*time.Second {
		t.Errorf("IntervalOr = %v, want override", got)
	}
}

func TestStoreConfig_Conversions(t *testing.T) {
	t.Parallel()

	s := defaultConfig().Store
	p := s.RetryPolicy()
	if p.MaxAttempts != 4 || p.InitialDelay != 500*time.Millisecond {
		t.Errorf("retry policy = %+v", p)
	}
	b := s.BreakerSettings()
	if b.FailureRatio != 0.6 || b.MinRequests != 10 {
		t.Errorf("breaker settings = %+v", b)
	}
}
