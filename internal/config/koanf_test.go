// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testYAML = `
logging:
  level: debug
store:
  kind: sqlite
  sql:
    path: /tmp/nrtsync.db
sync:
  interval: 90s
  max_pages: 20
datasets:
  - id: quakes
    table: earthquakes
    uid_column: uid
    time_column: time
    schema:
      - name: uid
        type: text
      - name: time
        type: timestamp
      - name: mag
        type: numeric
    uid:
      strategy: natural_key
      fields: [id]
    columns:
      mag: properties.mag
    retention:
      max_rows: 500
      overflow: truncate_batch
    pagination:
      min_pages: 0
      page_size: 100
    source:
      url: https://example.com/feed.json
      records_path: features
      page_param: page
      size_param: limit
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFrom_File(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Store.Kind != StoreSQLite || cfg.Store.SQL.Path != "/tmp/nrtsync.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	// Untouched defaults survive the file layer.
	if cfg.Store.BatchSize != 1000 {
		t.Errorf("Store.BatchSize = %d, want default 1000", cfg.Store.BatchSize)
	}
	if cfg.Sync.Interval != 90*time.Second {
		t.Errorf("Sync.Interval = %v, want 90s", cfg.Sync.Interval)
	}
	if len(cfg.Datasets) != 1 {
		t.Fatalf("len(Datasets) = %d, want 1", len(cfg.Datasets))
	}
	d := cfg.Datasets[0]
	if d.Retention.MaxRows != 500 || d.Retention.Overflow != "truncate_batch" {
		t.Errorf("Retention = %+v", d.Retention)
	}
	if d.Columns["mag"] != "properties.mag" {
		t.Errorf("Columns = %v", d.Columns)
	}
	if len(d.Schema) != 3 || d.Schema[1].Type != "timestamp" {
		t.Errorf("Schema = %+v", d.Schema)
	}

	ds, err := BuildDataset(d, cfg.Sync)
	if err != nil {
		t.Fatalf("BuildDataset: %v", err)
	}
	if ds.MaxPages != 20 {
		t.Errorf("MaxPages = %d, want sync default 20", ds.MaxPages)
	}
	// An explicit zero overrides the sync default of 1.
	if ds.MinPages != 0 {
		t.Errorf("MinPages = %d, want explicit override 0", ds.MinPages)
	}
}

func TestLoadFrom_EnvOverridesFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SYNC_RUN_ONCE", "true")
	t.Setenv("STORE_BATCH_SIZE", "250")
	t.Setenv("CIRCUIT_BREAKER_ENABLED", "false")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := LoadFrom(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want env override warn", cfg.Logging.Level)
	}
	if !cfg.Sync.RunOnce {
		t.Error("Sync.RunOnce should be true from env")
	}
	if cfg.Store.BatchSize != 250 {
		t.Errorf("Store.BatchSize = %d, want 250", cfg.Store.BatchSize)
	}
	if cfg.Store.CircuitBreaker.Enabled {
		t.Error("CircuitBreaker.Enabled should be false from env")
	}
}

func TestLoadFrom_NoFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Store.Kind != StoreMemory || len(cfg.Datasets) != 0 {
		t.Errorf("unexpected config: kind=%s datasets=%d", cfg.Store.Kind, len(cfg.Datasets))
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, strings.Replace(testYAML, "overflow: truncate_batch", "overflow: \"\"", 1))
	_, err := LoadFrom(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "retention.overflow is required") {
		t.Errorf("error = %v", err)
	}
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, writeConfig(t, testYAML))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Datasets) != 1 {
		t.Errorf("len(Datasets) = %d, want 1 from CONFIG_PATH", len(cfg.Datasets))
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"LOG_LEVEL":     "logging.level",
		"CARTO_API_KEY": "store.carto.api_key",
		"NATS_URL":      "events.nats_url",
		"HOME":          "",
		"PATH":          "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}
