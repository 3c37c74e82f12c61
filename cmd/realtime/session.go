package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	realtime "github.com/layr8/go-realtime"
	"github.com/layr8/go-realtime/internal/logging"
)

type globalFlags struct {
	configPath  string
	url         string
	protocols   []string
	credential  string
	skipAuth    bool
	renew       time.Duration
	logLevel    string
	logFormat   string
	metricsAddr string
}

// config merges the file (if any) with flag overrides.
func (g *globalFlags) config() (realtime.Config, error) {
	var cfg realtime.Config
	if g.configPath != "" {
		loaded, err := realtime.LoadConfig(g.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if g.url != "" {
		cfg.URL = g.url
	}
	if len(g.protocols) > 0 {
		cfg.Protocols = g.protocols
	}
	if g.skipAuth {
		cfg.SkipAuth = true
	}
	if g.renew > 0 {
		cfg.RenewInterval = g.renew
	}
	return cfg, nil
}

// parseCredential passes JSON through untouched and sends anything else as a
// JSON string. An empty flag means no credential.
func parseCredential(s string) any {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}

// session is a connected client plus the process-level plumbing around it.
type session struct {
	client *realtime.Client
	log    *slog.Logger
	stop   []func()
}

func openSession(ctx context.Context, g *globalFlags) (*session, error) {
	log := logging.New(logging.Config{Level: g.logLevel, Format: g.logFormat}, version)

	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	cfg.OnStatus = func(s realtime.ConnectionStatus) {
		log.Info("connection status", "status", s.String())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := realtime.NewClient(cfg,
		realtime.WithLogger(log),
		realtime.WithMetricsRegistry(registry),
	)
	if err != nil {
		return nil, err
	}
	s := &session{client: client, log: log}

	if g.metricsAddr != "" {
		s.stop = append(s.stop, startMetricsServer(g.metricsAddr, registry, client, log))
	}

	ready, err := client.Connect(ctx, parseCredential(g.credential))
	if err != nil {
		s.close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	if !ready {
		s.close()
		return nil, errors.New("connect: not authorized")
	}
	return s, nil
}

func (s *session) close() {
	s.client.Close()
	for _, fn := range s.stop {
		fn()
	}
}

// parseData turns a --data flag into a payload: JSON as-is, empty as none.
func parseData(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("--data is not valid JSON: %q", s)
	}
	return json.RawMessage(s), nil
}
