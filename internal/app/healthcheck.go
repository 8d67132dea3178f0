package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// buildStatus is the outcome of the most recent build in watch mode.
type buildStatus struct {
	mu      sync.Mutex
	err     error
	started bool
}

func (s *buildStatus) set(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.started = true
}

func (s *buildStatus) get() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.err
}

// healthHandler answers 200 once the latest build succeeded and 503 while
// none finished or the latest one failed.
func (a *App) healthHandler(status *buildStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
		started, err := status.get()
		switch {
		case !started:
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "building")
		case err != nil:
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, err.Error())
		default:
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "OK")
		}
	}
}

// startHealthcheckServer serves /health until the returned stop function is
// called. A zero port disables it.
func (a *App) startHealthcheckServer(port int, status *buildStatus) (stop func()) {
	if port <= 0 {
		a.logger.Debug("Health check server not started: disabled")
		return func() {}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler(status))
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// ListenAndServe returns ErrServerClosed on graceful shutdown.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.Info("🩺 Shutting down health check server...")
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Error("Health check server shutdown failed", "error", err)
		}
	}
}
