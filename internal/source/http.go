// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/nrtsync/internal/logging"
	"github.com/tomtom215/nrtsync/internal/record"
)

// maxErrorBodySize limits how much of an error response body is read.
const maxErrorBodySize = 64 * 1024

// HTTPConfig describes a paginated JSON endpoint.
type HTTPConfig struct {
	URL     string
	Headers map[string]string

	// RecordsPath is the dotted path of the record array in the response.
	// Empty means the response body is the array itself.
	RecordsPath string

	// Page-number pagination: PageParam carries FirstPage+Number.
	PageParam string
	FirstPage int

	// SizeParam carries PageSize when both are set. A page shorter than
	// PageSize ends page-number pagination.
	SizeParam string
	PageSize  int

	// Token pagination: the token read from NextTokenPath is sent back in
	// TokenParam. Takes precedence over page numbers once a token is known.
	TokenParam    string
	NextTokenPath string

	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// HTTPJSON fetches pages from a JSON HTTP API.
type HTTPJSON struct {
	cfg     HTTPConfig
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPJSON validates cfg and returns a fetcher.
func NewHTTPJSON(cfg HTTPConfig) (*HTTPJSON, error) {
	if cfg.URL == "" {
		return nil, errors.New("source url is required")
	}
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid source url %q", cfg.URL)
	}
	if cfg.TokenParam != "" && cfg.NextTokenPath == "" {
		return nil, errors.New("token_param requires next_token_path")
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &HTTPJSON{cfg: cfg, base: base, client: client, limiter: rate.NewLimiter(limit, 1)}, nil
}

func (h *HTTPJSON) pageURL(req PageRequest) string {
	u := *h.base
	q := u.Query()
	switch {
	case req.Token != "" && h.cfg.TokenParam != "":
		q.Set(h.cfg.TokenParam, req.Token)
	case h.cfg.PageParam != "":
		q.Set(h.cfg.PageParam, strconv.Itoa(h.cfg.FirstPage+req.Number))
	}
	if h.cfg.SizeParam != "" && h.cfg.PageSize > 0 {
		q.Set(h.cfg.SizeParam, strconv.Itoa(h.cfg.PageSize))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage implements Fetcher.
func (h *HTTPJSON) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	reqURL := h.pageURL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return Page{}, &FatalFetchError{Page: req.Number, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range h.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, &TransientFetchError{Page: req.Number, Err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		statusErr := fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return Page{}, &TransientFetchError{Page: req.Number, Status: resp.StatusCode, Err: statusErr}
		}
		return Page{}, &FatalFetchError{Page: req.Number, Status: resp.StatusCode, Err: statusErr}
	}

	var doc any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, &TransientFetchError{Page: req.Number, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	records, err := extractRecords(doc, h.cfg.RecordsPath)
	if err != nil {
		return Page{}, &FatalFetchError{Page: req.Number, Err: err}
	}

	page := Page{Records: records}
	switch {
	case h.cfg.NextTokenPath != "":
		if obj, ok := doc.(map[string]any); ok {
			if tok, ok := record.Record(obj).Get(h.cfg.NextTokenPath); ok && tok != nil {
				page.Next = fmt.Sprint(tok)
			}
		}
		page.HasMore = page.Next != ""
	case h.cfg.PageParam != "":
		page.HasMore = len(records) > 0 && (h.cfg.PageSize <= 0 || len(records) >= h.cfg.PageSize)
	}

	logging.Debug().Str("url", h.base.Host+h.base.Path).Int("page", req.Number).
		Int("records", len(records)).Bool("has_more", page.HasMore).Msg("Fetched source page")
	return page, nil
}

// extractRecords finds the record array at path. A missing path yields no
// records; anything that is not an array of objects is an error.
func extractRecords(doc any, path string) ([]record.Record, error) {
	target := doc
	if path != "" {
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("response is not an object, cannot read %q", path)
		}
		v, found := record.Record(obj).Get(path)
		if !found || v == nil {
			return nil, nil
		}
		target = v
	}

	items, ok := target.([]any)
	if !ok {
		return nil, fmt.Errorf("records at %q are %T, not an array", path, target)
	}
	records := make([]record.Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is %T, not an object", i, item)
		}
		records = append(records, record.Record(obj))
	}
	return records, nil
}
