package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const shutdownGrace = 5 * time.Second

// Serve exposes the registry on GET /metrics at port until ctx is done.
// mount may attach further routes to the same mux; the worker hangs its
// health probes there.
func (m *Metrics) Serve(ctx context.Context, port int, mount func(*http.ServeMux)) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	if mount != nil {
		mount(mux)
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	slog.Info("metrics endpoint listening", "addr", server.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving metrics on %s: %w", server.Addr, err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		return fmt.Errorf("stopping metrics endpoint: %w", err)
	}
	return nil
}
