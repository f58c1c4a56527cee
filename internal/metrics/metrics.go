// Package metrics exposes Prometheus instrumentation for the gateway.
// Collectors live on a private registry so tests can construct as many
// instances as they like without double-registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "burrowgate"

// Metrics bundles every collector the gateway publishes.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions   prometheus.Gauge
	handshakes       *prometheus.CounterVec
	forwards         *prometheus.CounterVec
	forwardSeconds   prometheus.Histogram
	heartbeats       *prometheus.CounterVec
	evictions        prometheus.Counter
	sweepRemovals    prometheus.Counter
	bannedRejections prometheus.Counter
	suspiciousEvents *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// New builds a Metrics instance backed by its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "active_sessions",
			Help:      "Number of currently registered agent sessions.",
		}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "handshakes_total",
			Help:      "Tunnel handshake attempts by outcome.",
		}, []string{"outcome"}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "forwards_total",
			Help:      "Forward dispatches by outcome.",
		}, []string{"outcome"}),
		forwardSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "forward_duration_seconds",
			Help:      "Latency of successful forward dispatches.",
			Buckets:   prometheus.DefBuckets,
		}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "heartbeats_total",
			Help:      "Heartbeat probes by outcome.",
		}, []string{"outcome"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "evictions_total",
			Help:      "Sessions replaced by a newer connection with the same name.",
		}),
		sweepRemovals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "sweep_removals_total",
			Help:      "Sessions removed by health sweeps.",
		}),
		bannedRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "banned_rejections_total",
			Help:      "Tunnel connections dropped because the source IP is banned.",
		}),
		suspiciousEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "suspicious_events_total",
			Help:      "Suspicious activity reports by kind.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by method and status code.",
		}, []string{"method", "status"}),
	}

	m.registry.MustRegister(
		m.activeSessions,
		m.handshakes,
		m.forwards,
		m.forwardSeconds,
		m.heartbeats,
		m.evictions,
		m.sweepRemovals,
		m.bannedRejections,
		m.suspiciousEvents,
		m.httpRequests,
	)
	return m
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionRegistered() { m.activeSessions.Inc() }

func (m *Metrics) SessionRemoved() { m.activeSessions.Dec() }

func (m *Metrics) SessionEvicted() { m.evictions.Inc() }

// HandshakeResult records one handshake attempt. Outcomes in use:
// registered, auth_failed, invalid_protocol, version_mismatch, terminated,
// duplicate_rejected, io_error.
func (m *Metrics) HandshakeResult(outcome string) {
	m.handshakes.WithLabelValues(outcome).Inc()
}

// ForwardObserved records the outcome of one forward dispatch. Latency is
// only collected for completed dispatches.
func (m *Metrics) ForwardObserved(outcome string, seconds float64) {
	m.forwards.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.forwardSeconds.Observe(seconds)
	}
}

func (m *Metrics) HeartbeatResult(outcome string) {
	m.heartbeats.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SweepRemoved(count int) {
	m.sweepRemovals.Add(float64(count))
}

func (m *Metrics) BannedRejection() { m.bannedRejections.Inc() }

func (m *Metrics) SuspiciousEvent(kind string) {
	m.suspiciousEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) HTTPRequest(method, status string) {
	m.httpRequests.WithLabelValues(method, status).Inc()
}
