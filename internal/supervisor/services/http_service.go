// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/nrtsync/internal/logging"
)

// DefaultShutdownTimeout bounds the drain of in-flight ops API requests.
const DefaultShutdownTimeout = 10 * time.Second

// HTTPServer is the subset of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService keeps the ops API listening under supervision. A listen
// failure is returned so suture restarts the service with backoff.
//
//	server := &http.Server{Addr: ":8080", Handler: api.NewRouter(h, cfg)}
//	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
type HTTPServerService struct {
	server HTTPServer
	drain  time.Duration
	starts int
}

// NewHTTPServerService wraps server. A non-positive shutdownTimeout means
// DefaultShutdownTimeout.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &HTTPServerService{server: server, drain: shutdownTimeout}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	h.starts++
	logger := logging.WithComponent(h.String())

	listenErr := make(chan error, 1)
	go func() {
		err := h.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		listenErr <- err
	}()
	logger.Debug().Int("start", h.starts).Msg("Ops API server starting")

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("ops API listener: %w", err)
		}
		// Closed by someone other than this service.
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.drain)
	defer cancel()
	began := time.Now()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops API shutdown after %s: %w", h.drain, err)
	}
	<-listenErr
	logger.Info().Dur("drained_in", time.Since(began)).Msg("Ops API server stopped")
	return ctx.Err()
}

// String names the service in suture's logs.
func (h *HTTPServerService) String() string {
	return "http-server"
}
