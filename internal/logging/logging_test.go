// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if IsValidLevel("bogus") {
		t.Error("expected bogus to be invalid")
	}
	if !IsValidLevel("warn") {
		t.Error("expected warn to be valid")
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	id1 := GenerateCorrelationID()
	id2 := GenerateCorrelationID()
	if len(id1) != 8 {
		t.Errorf("expected 8-character correlation ID, got %d", len(id1))
	}
	if id1 == id2 {
		t.Error("expected unique correlation IDs")
	}
}

func TestCtxAddsCorrelationID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), NewTestLogger(&buf))
	ctx = ContextWithCorrelationID(ctx, "run-1234")

	Ctx(ctx).Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"correlation_id":"run-1234"`) {
		t.Errorf("expected correlation_id in output, got %s", out)
	}
	if CorrelationIDFromContext(context.Background()) != "" {
		t.Error("expected empty correlation ID on bare context")
	}
}

func TestSlogHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf)))

	logger.WithGroup("svc").With("name", "sync").Warn("restarting",
		"attempt", 3,
		"err", errors.New("boom"),
	)

	out := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"svc.name":"sync"`,
		`"svc.attempt":3`,
		`"svc.err":"boom"`,
		`"message":"restarting"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got %s", want, out)
		}
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	t.Parallel()

	if slogToZerologLevel(slog.LevelDebug) != zerolog.DebugLevel {
		t.Error("debug mapping")
	}
	if slogToZerologLevel(slog.LevelInfo+1) != zerolog.InfoLevel {
		t.Error("info+1 mapping")
	}
	if slogToZerologLevel(slog.LevelError+4) != zerolog.ErrorLevel {
		t.Error("error+4 mapping")
	}
}

// Not parallel: swaps the global logger.
func TestGlobalHelpers(t *testing.T) {
	var buf bytes.Buffer
	mu.Lock()
	saved := log
	log = zerolog.New(&buf)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		log = saved
		mu.Unlock()
	})

	Err(nil).Msg("closed cleanly")
	Err(errors.New("disk full")).Msg("close failed")
	cl := WithComponent("runlog-gc")
	cl.Info().Msg("tick")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d log lines, want 3: %q", len(lines), buf.String())
	}
	wants := []string{`"level":"info"`, `"level":"error"`, `"component":"runlog-gc"`}
	for i, want := range wants {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %s, want %s", i, lines[i], want)
		}
	}
	if !strings.Contains(lines[1], `"error":"disk full"`) {
		t.Errorf("error line = %s", lines[1])
	}
}
