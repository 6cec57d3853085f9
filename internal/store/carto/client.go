// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package carto implements store.Store over the CARTO SQL API.
//
// Every operation is a single POST of statement text to
// https://{user}.carto.com/api/v2/sql. The API does not support bind
// parameters, so values are rendered as escaped literals by sqlbuild's
// inline mode. Tables are published with cdb_cartodbfytable, which adds the
// cartodb_id row identifier and registers the table with the platform.
//
// The client does not retry. It classifies failures (rate limiting, gateway
// errors, transport errors) as retryable or not on the returned *store.Error
// and leaves the retry decision to store.WithRetry.
package carto

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
	"github.com/tomtom215/nrtsync/internal/metrics"
	"github.com/tomtom215/nrtsync/internal/schema"
	"github.com/tomtom215/nrtsync/internal/store"
	"github.com/tomtom215/nrtsync/internal/store/sqlbuild"
)

// maxErrorBodySize limits how much of an error response body is read.
const maxErrorBodySize = 64 * 1024

const backendName = "carto"

// Config holds CARTO account settings. Credentials are passed explicitly;
// the client never reads the environment.
type Config struct {
	User   string
	APIKey string

	// BaseURL overrides https://{User}.carto.com (on-premise installs, tests).
	BaseURL string

	Timeout           time.Duration
	RequestsPerSecond float64
	BatchSize         int

	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// Client is a store.Store backed by the CARTO SQL API.
type Client struct {
	user      string
	apiKey    string
	endpoint  string
	batchSize int
	http      *http.Client
	limiter   *rate.Limiter
	sql       *sqlbuild.Builder
}

// New validates cfg and creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.User == "" {
		return nil, errors.New("carto: user is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("carto: api key is required")
	}

	base := cfg.BaseURL
	if base == "" {
		base = "https://" + url.PathEscape(cfg.User) + ".carto.com"
	}
	endpoint, err := url.JoinPath(base, "api", "v2", "sql")
	if err != nil {
		return nil, fmt.Errorf("carto: invalid base url: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		hc = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = store.DefaultBatchSize
	}

	return &Client{
		user:      cfg.User,
		apiKey:    cfg.APIKey,
		endpoint:  endpoint,
		batchSize: batch,
		http:      hc,
		limiter:   rate.NewLimiter(limit, burst),
		sql:       sqlbuild.NewInline(sqlbuild.Carto),
	}, nil
}

// response is the SQL API result envelope.
type response struct {
	Rows      []map[string]any `json:"rows"`
	TotalRows int              `json:"total_rows"`
	Error     []string         `json:"error"`
}

// readBodyForError reads a bounded prefix of an error response body.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// query executes one statement.
func (c *Client) query(ctx context.Context, op, table, q string) (resp *response, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreOp(backendName, op, time.Since(start), err)
	}()

	// Insert statements are not idempotent: a request that may have reached
	// the server must not be repeated.
	idempotent := op != store.OpInsertRows

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &store.Error{Op: op, Table: table, Message: "rate limiter wait", Err: err}
	}

	form := url.Values{}
	form.Set("q", q)
	form.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &store.Error{Op: op, Table: table, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	logging.Trace().Str("op", op).Str("table", table).Int("sql_bytes", len(q)).Msg("Carto SQL request")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, &store.Error{
			Op: op, Table: table, Message: "HTTP request failed",
			Retryable: idempotent && ctx.Err() == nil, Err: err,
		}
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, c.statusError(op, table, httpResp, idempotent)
	}

	var body response
	dec := json.NewDecoder(httpResp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, &store.Error{Op: op, Table: table, Status: httpResp.StatusCode, Message: "failed to decode response", Err: err}
	}
	if len(body.Error) > 0 {
		return nil, &store.Error{Op: op, Table: table, Status: httpResp.StatusCode, Message: strings.Join(body.Error, "; ")}
	}
	return &body, nil
}

func (c *Client) statusError(op, table string, resp *http.Response, idempotent bool) error {
	raw := readBodyForError(resp.Body)
	msg := strings.TrimSpace(string(raw))
	var body response
	if json.Unmarshal(raw, &body) == nil && len(body.Error) > 0 {
		msg = strings.Join(body.Error, "; ")
	}

	se := &store.Error{Op: op, Table: table, Status: resp.StatusCode, Message: msg}
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		// Rejected before execution, safe to repeat for every operation.
		se.Retryable = true
		se.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		se.Retryable = idempotent
	}
	return se
}

// parseRetryAfter reads a Retry-After header in delay-seconds form.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// RowIDColumn implements store.Store.
func (c *Client) RowIDColumn() string {
	return sqlbuild.Carto.RowID
}

// TableExists implements store.Store.
func (c *Client) TableExists(ctx context.Context, table string) (bool, error) {
	stmt, err := c.sql.TableExists(table)
	if err != nil {
		return false, store.Wrap(store.OpTableExists, table, err)
	}
	resp, err := c.query(ctx, store.OpTableExists, table, stmt.SQL)
	if err != nil {
		return false, err
	}
	if len(resp.Rows) == 0 {
		return false, nil
	}
	n, err := strconv.ParseFloat(store.FormatValue(resp.Rows[0]["n"]), 64)
	if err != nil {
		return false, &store.Error{Op: store.OpTableExists, Table: table, Message: "unexpected count value", Err: err}
	}
	return n > 0, nil
}

// CreateTable implements store.Store. The table is created and then
// cartodbfied; a table that fails the second step is left unpublished and
// the error is returned.
func (c *Client) CreateTable(ctx context.Context, table string, s *schema.Schema) error {
	stmts, err := c.sql.CreateTable(table, s)
	if err != nil {
		return store.Wrap(store.OpCreateTable, table, err)
	}
	for _, stmt := range stmts {
		if _, err := c.query(ctx, store.OpCreateTable, table, stmt.SQL); err != nil {
			return err
		}
	}

	finalize := "SELECT cdb_cartodbfytable(" + sqlbuild.Quote(c.user) + ", " + sqlbuild.Quote(table) + ")"
	if _, err := c.query(ctx, store.OpCreateTable, table, finalize); err != nil {
		return fmt.Errorf("publish table %s: %w", table, err)
	}
	logging.Info().Str("table", table).Int("columns", s.Len()).Msg("Created and published Carto table")
	return nil
}

// CreateIndex implements store.Store.
func (c *Client) CreateIndex(ctx context.Context, table string, columns []string, unique bool) error {
	stmt, err := c.sql.CreateIndex(table, columns, unique)
	if err != nil {
		return store.Wrap(store.OpCreateIndex, table, err)
	}
	_, err = c.query(ctx, store.OpCreateIndex, table, stmt.SQL)
	return err
}

// QueryColumn implements store.Store.
func (c *Client) QueryColumn(ctx context.Context, table, column string, order *store.Order) ([]string, error) {
	stmt, err := c.sql.SelectColumn(table, column, order)
	if err != nil {
		return nil, store.Wrap(store.OpQueryColumn, table, err)
	}
	resp, err := c.query(ctx, store.OpQueryColumn, table, stmt.SQL)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if v, ok := columnValue(row, column); ok && v != nil {
			values = append(values, store.FormatValue(v))
		}
	}
	return values, nil
}

// columnValue looks up column in a result row. PostgreSQL folds unquoted
// identifiers to lower case, so "EventID" comes back keyed "eventid".
func columnValue(row map[string]any, column string) (any, bool) {
	if v, ok := row[column]; ok {
		return v, true
	}
	v, ok := row[strings.ToLower(column)]
	return v, ok
}

// InsertRows implements store.Store.
func (c *Client) InsertRows(ctx context.Context, table string, s *schema.Schema, rows []schema.Row) error {
	written := 0
	for i, block := range store.Blocks(rows, c.batchSize) {
		stmt, err := c.sql.Insert(table, s, block)
		if err != nil {
			return &store.Error{Op: store.OpInsertRows, Table: table, RowsWritten: written,
				Message: fmt.Sprintf("render block %d", i), Err: err}
		}
		if _, err := c.query(ctx, store.OpInsertRows, table, stmt.SQL); err != nil {
			var se *store.Error
			if errors.As(err, &se) {
				se.RowsWritten = written
			}
			return err
		}
		written += len(block)
		logging.Debug().Str("table", table).Int("block", i).Int("rows", len(block)).Int("written", written).Msg("Inserted block")
	}
	return nil
}

// DeleteWhere implements store.Store.
func (c *Client) DeleteWhere(ctx context.Context, table string, p store.Predicate) (int, error) {
	stmt, err := c.sql.Delete(table, p)
	if err != nil {
		return 0, store.Wrap(store.OpDeleteWhere, table, err)
	}
	resp, err := c.query(ctx, store.OpDeleteWhere, table, stmt.SQL)
	if err != nil {
		return 0, err
	}
	return resp.TotalRows, nil
}

// compile-time interface check
var _ store.Store = (*Client)(nil)
