package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "peerchat"

// Metrics holds the collectors for handshakes, chat traffic and sessions.
// A nil *Metrics is valid and records nothing, so callers never need to check.
type Metrics struct {
	registry *prometheus.Registry

	HandshakeLatency *prometheus.HistogramVec // by role and result
	HandshakeErrors  *prometheus.CounterVec   // by role and error kind
	Messages         *prometheus.CounterVec   // by direction
	ActiveSessions   prometheus.Gauge
	ConnectionErrors *prometheus.CounterVec // by error kind
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HandshakeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "Time spent in the key exchange.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"role", "result"}),
		HandshakeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_errors_total",
			Help:      "Failed key exchanges.",
		}, []string{"role", "kind"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages encrypted or decrypted.",
		}, []string{"direction"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Chat sessions currently running.",
		}),
		ConnectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_errors_total",
			Help:      "Chat sessions that ended with an error.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.HandshakeLatency,
		m.HandshakeErrors,
		m.Messages,
		m.ActiveSessions,
		m.ConnectionErrors,
	)
	return m
}

// Registry exposes the registry, e.g. to add process collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveHandshake(role string, d time.Duration, kind string) {
	if m == nil {
		return
	}
	result := "ok"
	if kind != "" {
		result = "error"
		m.HandshakeErrors.WithLabelValues(role, kind).Inc()
	}
	m.HandshakeLatency.WithLabelValues(role, result).Observe(d.Seconds())
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues("sent").Inc()
}

func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues("received").Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionEnded records the end of a chat session. kind is empty for a clean end.
func (m *Metrics) SessionEnded(kind string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	if kind != "" {
		m.ConnectionErrors.WithLabelValues(kind).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
