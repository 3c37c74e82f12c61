package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	realtime "github.com/layr8/go-realtime"
)

const shutdownTimeout = 5 * time.Second

// stateReporter is the part of the client the health endpoint reads.
type stateReporter interface {
	State() realtime.State
	IsReady() bool
	ID() string
}

func newRouter(gatherer prometheus.Gatherer, client stateReporter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		if !client.IsReady() {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"client_id": client.ID(),
			"state":     client.State().String(),
			"ready":     client.IsReady(),
		})
	})
	return r
}

// startMetricsServer serves the router on addr until the returned function is called.
func startMetricsServer(addr string, gatherer prometheus.Gatherer, client stateReporter, log *slog.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(gatherer, client),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
