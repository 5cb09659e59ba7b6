// Package metrics exposes Prometheus collectors for packet endpoints.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Config struct {
	Namespace string
	Subsystem string
	Registry  prometheus.Registerer
}

type Metrics struct {
	sessionsActive  prometheus.Gauge
	connections     prometheus.Counter
	authFailures    prometheus.Counter
	packetsReceived *prometheus.CounterVec
	packetsSent     *prometheus.CounterVec
	packetErrors    *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
}

func New(config Config) *Metrics {
	if config.Namespace == "" {
		config.Namespace = "neptunium"
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "sessions_active",
			Help:      "Number of authenticated sessions",
		}),
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "connections_total",
			Help:      "Total number of accepted transport connections",
		}),
		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected handshakes",
		}),
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "packets_received_total",
			Help:      "Total number of decoded packets",
		}, []string{"packet"}),
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "packets_sent_total",
			Help:      "Total number of queued packets",
		}, []string{"packet"}),
		packetErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "packet_errors_total",
			Help:      "Total number of packets dropped or failed in handlers",
		}, []string{"kind"}),
		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "handler_duration_seconds",
			Help:      "Packet handler duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"packet"}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) AuthFailed() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}

func (m *Metrics) PacketReceived(name string) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(name).Inc()
}

func (m *Metrics) PacketSent(name string) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(name).Inc()
}

// PacketError counts a dropped packet or failed handler.
// kind is one of "unknown", "malformed" or "handler".
func (m *Metrics) PacketError(kind string) {
	if m == nil {
		return
	}
	m.packetErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveHandler(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(name).Observe(d.Seconds())
}
