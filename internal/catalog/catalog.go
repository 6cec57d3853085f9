// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package catalog reports dataset freshness to a data catalog.
//
// The catalog exposes one dataset resource per id. A freshness report is a
// PATCH of the dataLastUpdated attribute:
//
//	PATCH {base}/v1/dataset/{id}
//	Authorization: Bearer {token}
//	{"dataLastUpdated": "2024-01-02T03:04:05.000Z"}
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/nrtsync/internal/logging"
)

// TimestampLayout is the wire format of dataLastUpdated (RFC3339, milliseconds, UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const maxErrorBodySize = 64 * 1024

// Config holds catalog settings. The token is passed explicitly.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	HTTPClient *http.Client
}

// Client is a LastUpdatedReporter backed by the catalog API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New validates cfg and creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("catalog: invalid base url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: strings.TrimRight(cfg.BaseURL, "/"), token: cfg.Token, http: hc}, nil
}

type patchBody struct {
	DataLastUpdated string `json:"dataLastUpdated"`
}

// StatusError is returned for a non-2xx catalog response.
type StatusError struct {
	DatasetID string
	Status    int
	Body      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: dataset %s: HTTP %d: %s", e.DatasetID, e.Status, e.Body)
}

// ReportLastUpdated sets the dataset's dataLastUpdated attribute to ts.
func (c *Client) ReportLastUpdated(ctx context.Context, datasetID string, ts time.Time) error {
	endpoint, err := url.JoinPath(c.base, "v1", "dataset", datasetID)
	if err != nil {
		return fmt.Errorf("catalog: build url: %w", err)
	}

	payload, err := json.Marshal(patchBody{DataLastUpdated: ts.UTC().Format(TimestampLayout)})
	if err != nil {
		return fmt.Errorf("catalog: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("catalog: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: dataset %s: %w", datasetID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{DatasetID: datasetID, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	logging.Ctx(ctx).Debug().Str("catalog_dataset", datasetID).Time("data_last_updated", ts).Msg("Catalog updated")
	return nil
}

// Noop discards freshness reports. Used when no catalog is configured.
type Noop struct{}

// ReportLastUpdated implements the reporter interface and does nothing.
func (Noop) ReportLastUpdated(context.Context, string, time.Time) error { return nil }
