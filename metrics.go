package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "realtime"

// metrics holds the Prometheus collectors for one client. With a nil
// registerer the collectors still count but are not exported.
type metrics struct {
	messagesSent      *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	queueDepth        prometheus.Gauge
	queueOverflows    prometheus.Counter
	reconnectAttempts prometheus.Counter
	reconnects        prometheus.Counter
	pending           *prometheus.GaugeVec
	timeouts          *prometheus.CounterVec
	requestDuration   prometheus.Histogram
}

func newMetrics(registry prometheus.Registerer, clientID string) *metrics {
	factory := promauto.With(registry)
	labels := prometheus.Labels{"client_id": clientID}

	return &metrics{
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "messages_sent_total",
			Help:        "Messages written to the connection, by command",
			ConstLabels: labels,
		}, []string{"command"}),

		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "messages_received_total",
			Help:        "Messages read from the connection, by command",
			ConstLabels: labels,
		}, []string{"command"}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "outbound_queue_depth",
			Help:        "Messages waiting for the connection to become ready",
			ConstLabels: labels,
		}),

		queueOverflows: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "outbound_queue_overflows_total",
			Help:        "Messages rejected because the outbound queue was full",
			ConstLabels: labels,
		}),

		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "reconnect_attempts_total",
			Help:        "Automatic reconnect attempts",
			ConstLabels: labels,
		}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "reconnects_total",
			Help:        "Reconnect attempts that produced a ready connection",
			ConstLabels: labels,
		}),

		pending: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "pending_operations",
			Help:        "Operations waiting for a correlated reply, by kind",
			ConstLabels: labels,
		}, []string{"kind"}),

		timeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "timeouts_total",
			Help:        "Operations that gave up waiting for a reply, by kind",
			ConstLabels: labels,
		}, []string{"kind"}),

		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   metricsNamespace,
			Name:        "request_duration_seconds",
			Help:        "Time from sending a request to its settlement",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
}
