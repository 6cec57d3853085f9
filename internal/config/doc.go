// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

/*
Package config provides centralized configuration management for NRTSync.

# Configuration Sources

Configuration is layered with Koanf v2, later layers overriding earlier ones:
 1. Struct defaults (defaultConfig)
 2. An optional YAML file: CONFIG_PATH, or the first of DefaultConfigPaths
 3. Environment variables listed in envMappings (scalars only; datasets are
    file-only)

# Configuration Structure

  - LoggingConfig: zerolog level, format and caller
  - ServerConfig: ops HTTP API listener and rate limit
  - StoreConfig: backend kind (carto, duckdb, sqlite, memory), retry policy,
    circuit breaker
  - CatalogConfig: freshness reporting target
  - RunlogConfig: BadgerDB run ledger
  - EventsConfig: Watermill run events (gochannel or NATS JetStream)
  - SyncConfig: defaults shared by every dataset
  - DatasetConfig: one synchronized table and its source

# Example

	datasets:
	  - id: air-quality
	    table: air_quality
	    uid_column: uid
	    time_column: observed_at
	    schema:
	      - {name: uid, type: text}
	      - {name: observed_at, type: timestamp}
	      - {name: pm25, type: numeric}
	      - {name: the_geom, type: geometry}
	    columns:
	      observed_at: properties.time
	      pm25: properties.pm25
	      the_geom: point(lon,lat)
	    uid: {strategy: natural_key, fields: [station, properties.time]}
	    retention: {max_rows: 100000, overflow: trim_table}
	    source:
	      url: https://api.example.org/measurements
	      records_path: results
	      page_param: page
	      size_param: limit
	    pagination: {page_size: 500, max_pages: 20}

Config is immutable after Load and safe for concurrent reads.
*/
package config
