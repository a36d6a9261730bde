// Package metrics exposes Prometheus collectors for the relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the relay. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	HandshakesTotal *prometheus.CounterVec
	AudioBytesTotal *prometheus.CounterVec

	// Message metrics
	GatewayEventsTotal  *prometheus.CounterVec
	ClientMessagesTotal *prometheus.CounterVec

	// Caption metrics
	CaptionsTotal   *prometheus.CounterVec
	CaptionDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with every collector registered on its
// own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "novo"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently relaying",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of finished sessions",
		},
		[]string{"reason"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	handshakesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_handshakes_total",
			Help:      "Gateway handshakes by result",
		},
		[]string{"result"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Audio bytes relayed",
		},
		[]string{"direction"},
	)

	gatewayEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_events_total",
			Help:      "Events received from the conversation service",
		},
		[]string{"type"},
	)

	clientMessagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_messages_total",
			Help:      "Messages received from browser clients",
		},
		[]string{"type"},
	)

	captionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captions_total",
			Help:      "Image captions by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	captionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "caption_duration_seconds",
			Help:      "Caption latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"kind"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		handshakesTotal,
		audioBytesTotal,
		gatewayEventsTotal,
		clientMessagesTotal,
		captionsTotal,
		captionDuration,
	)

	return &Metrics{
		registry:            registry,
		SessionsActive:      sessionsActive,
		SessionsTotal:       sessionsTotal,
		SessionDuration:     sessionDuration,
		HandshakesTotal:     handshakesTotal,
		AudioBytesTotal:     audioBytesTotal,
		GatewayEventsTotal:  gatewayEventsTotal,
		ClientMessagesTotal: clientMessagesTotal,
		CaptionsTotal:       captionsTotal,
		CaptionDuration:     captionDuration,
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a session entering the active state.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session leaving the active state.
func (m *Metrics) RecordSessionEnd(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordHandshake records a gateway handshake outcome.
func (m *Metrics) RecordHandshake(result string) {
	if m == nil {
		return
	}
	m.HandshakesTotal.WithLabelValues(result).Inc()
}

// RecordAudio records relayed audio bytes. Direction is "in" for
// microphone audio and "out" for synthesized speech.
func (m *Metrics) RecordAudio(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordGatewayEvent counts an event from the conversation service.
func (m *Metrics) RecordGatewayEvent(eventType string) {
	if m == nil {
		return
	}
	m.GatewayEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordClientMessage counts a message from a browser client.
func (m *Metrics) RecordClientMessage(msgType string) {
	if m == nil {
		return
	}
	m.ClientMessagesTotal.WithLabelValues(msgType).Inc()
}

// RecordCaption records a finished caption. Status is "ok" when the
// captioner produced the text and "fallback" otherwise.
func (m *Metrics) RecordCaption(kind string, fresh bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "fallback"
	if fresh {
		status = "ok"
	}
	m.CaptionsTotal.WithLabelValues(kind, status).Inc()
	m.CaptionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}
