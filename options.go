package realtime

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger         *slog.Logger
	onError        ErrorHandler
	registry       prometheus.Registerer
	tracerProvider trace.TracerProvider
	transport      transport
}

func clientDefaults() clientOptions {
	return clientOptions{
		logger: slog.New(slog.DiscardHandler),
	}
}

// WithLogger sets the structured logger. Records carry client_id and component attributes.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithErrorHandler sets the handler for errors that have no direct caller.
// Without it those errors are logged through the client's logger.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(o *clientOptions) {
		o.onError = fn
	}
}

// WithMetricsRegistry registers the client's Prometheus collectors with registry.
func WithMetricsRegistry(registry prometheus.Registerer) Option {
	return func(o *clientOptions) {
		o.registry = registry
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// Default: the global provider.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *clientOptions) {
		o.tracerProvider = provider
	}
}

func withTransport(t transport) Option {
	return func(o *clientOptions) {
		o.transport = t
	}
}

// WatchOption configures WatchEvent.
type WatchOption func(*watchOptions)

type watchOptions struct {
	autoAck bool
}

// WithAutoAck acknowledges every watched event back to the server before it
// is handed to the caller.
func WithAutoAck() WatchOption {
	return func(o *watchOptions) {
		o.autoAck = true
	}
}
