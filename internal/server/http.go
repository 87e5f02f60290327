// Package server adapts the HTTP listener to a supervised service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mossy-p/livestream-signaling/internal/logging"
)

// Listener is the part of *http.Server the service drives.
type Listener interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs a Listener until its context is canceled, then shuts it
// down gracefully.
type HTTPService struct {
	server          Listener
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server. A non-positive shutdownTimeout means 10s.
func NewHTTPService(server Listener, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		logging.Info().Str(logging.FieldComponent, h.String()).Msg("shutting down http server")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string {
	return "http-server"
}
