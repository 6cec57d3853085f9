// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/nrtsync/internal/record"
)

func TestStaticFetcher(t *testing.T) {
	t.Parallel()

	boom := &TransientFetchError{Page: 1, Err: errors.New("timeout")}
	s := NewStatic(
		[]record.Record{{"id": "A"}},
		[]record.Record{{"id": "B"}},
		[]record.Record{},
	)
	s.Errors = map[int]error{1: boom}
	ctx := context.Background()

	p, err := s.FetchPage(ctx, PageRequest{Number: 0})
	if err != nil || len(p.Records) != 1 || !p.HasMore {
		t.Errorf("page 0 = %+v, %v", p, err)
	}
	if _, err := s.FetchPage(ctx, PageRequest{Number: 1}); !IsTransient(err) {
		t.Errorf("page 1 error = %v, want transient", err)
	}
	p, err = s.FetchPage(ctx, PageRequest{Number: 2})
	if err != nil || p.HasMore {
		t.Errorf("page 2 = %+v, %v", p, err)
	}
	p, _ = s.FetchPage(ctx, PageRequest{Number: 9})
	if p.HasMore || len(p.Records) != 0 {
		t.Errorf("past-end page = %+v", p)
	}
	if len(s.Calls()) != 4 {
		t.Errorf("calls = %d, want 4", len(s.Calls()))
	}
}

func TestFetchErrorClassification(t *testing.T) {
	t.Parallel()

	transient := fmt.Errorf("wrapped: %w", &TransientFetchError{Page: 2, Status: 503, Err: errors.New("down")})
	fatal := &FatalFetchError{Page: 0, Status: 401, Err: errors.New("unauthorized")}

	if !IsTransient(transient) || IsFatal(transient) {
		t.Error("transient classification wrong")
	}
	if !IsFatal(fatal) || IsTransient(fatal) {
		t.Error("fatal classification wrong")
	}
	if transient.Error() == "" || fatal.Error() == "" {
		t.Error("expected error messages")
	}
}

func TestHTTPJSONPageNumbers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		page := r.URL.Query().Get("page")
		size := r.URL.Query().Get("limit")
		if size != "2" {
			t.Errorf("limit = %q, want 2", size)
		}
		body := map[string]any{"data": map[string]any{"items": []any{}}}
		switch page {
		case "1":
			body["data"] = map[string]any{"items": []any{map[string]any{"id": 1}, map[string]any{"id": 2}}}
		case "2":
			body["data"] = map[string]any{"items": []any{map[string]any{"id": 3}}}
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	f, err := NewHTTPJSON(HTTPConfig{
		URL:         srv.URL + "/feed?format=json",
		Headers:     map[string]string{"X-Api-Key": "k"},
		RecordsPath: "data.items",
		PageParam:   "page",
		FirstPage:   1,
		SizeParam:   "limit",
		PageSize:    2,
	})
	if err != nil {
		t.Fatalf("NewHTTPJSON() error = %v", err)
	}
	ctx := context.Background()

	p, err := f.FetchPage(ctx, PageRequest{Number: 0})
	if err != nil {
		t.Fatalf("FetchPage(0) error = %v", err)
	}
	if len(p.Records) != 2 || !p.HasMore {
		t.Errorf("page 0 = %+v", p)
	}
	if id, _ := p.Records[0].String("id"); id != "1" {
		t.Errorf("first id = %q", id)
	}

	p, err = f.FetchPage(ctx, PageRequest{Number: 1})
	if err != nil || len(p.Records) != 1 || p.HasMore {
		t.Errorf("short page should end pagination: %+v, %v", p, err)
	}
}

func TestHTTPJSONTokens(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(`{"features":[{"id":"a"}],"meta":{"next":"c2"}}`))
		case "c2":
			_, _ = w.Write([]byte(`{"features":[{"id":"b"}],"meta":{"next":null}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	f, err := NewHTTPJSON(HTTPConfig{URL: srv.URL, RecordsPath: "features", TokenParam: "cursor", NextTokenPath: "meta.next"})
	if err != nil {
		t.Fatalf("NewHTTPJSON() error = %v", err)
	}

	p, err := f.FetchPage(context.Background(), PageRequest{Number: 0})
	if err != nil || p.Next != "c2" || !p.HasMore {
		t.Fatalf("first page = %+v, %v", p, err)
	}
	p, err = f.FetchPage(context.Background(), PageRequest{Number: 1, Token: p.Next})
	if err != nil || p.HasMore || len(p.Records) != 1 {
		t.Errorf("last page = %+v, %v", p, err)
	}
}

func TestHTTPJSONErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		fatal     bool
	}{
		{"rate limited", http.StatusTooManyRequests, "", true, false},
		{"server error", http.StatusBadGateway, "", true, false},
		{"not found", http.StatusNotFound, "gone", false, true},
		{"truncated body", http.StatusOK, `{"items":[{"id"`, true, false},
		{"records not array", http.StatusOK, `{"items":{"id":1}}`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			f, err := NewHTTPJSON(HTTPConfig{URL: srv.URL, RecordsPath: "items"})
			if err != nil {
				t.Fatalf("NewHTTPJSON() error = %v", err)
			}
			_, err = f.FetchPage(context.Background(), PageRequest{})
			if IsTransient(err) != tt.transient || IsFatal(err) != tt.fatal {
				t.Errorf("error = %v, transient=%v fatal=%v", err, IsTransient(err), IsFatal(err))
			}
		})
	}
}

func TestHTTPJSONMissingPathAndSingleDocument(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1},{"id":2}]`))
	}))
	defer srv.Close()

	f, err := NewHTTPJSON(HTTPConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPJSON() error = %v", err)
	}
	p, err := f.FetchPage(context.Background(), PageRequest{})
	if err != nil || len(p.Records) != 2 || p.HasMore {
		t.Errorf("page = %+v, %v", p, err)
	}

	recs, err := extractRecords(map[string]any{"other": 1}, "items")
	if err != nil || len(recs) != 0 {
		t.Errorf("missing path = %v, %v", recs, err)
	}
}

func TestNewHTTPJSONValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPJSON(HTTPConfig{}); err == nil {
		t.Error("expected error without url")
	}
	if _, err := NewHTTPJSON(HTTPConfig{URL: "not a url"}); err == nil {
		t.Error("expected error for relative url")
	}
	if _, err := NewHTTPJSON(HTTPConfig{URL: "https://example.org", TokenParam: "c"}); err == nil {
		t.Error("expected error for token param without path")
	}
}
