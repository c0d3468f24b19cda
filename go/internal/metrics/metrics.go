package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the simulive service. It
// satisfies the metrics sink interfaces the domain packages declare.
type Metrics struct {
	registry             *prometheus.Registry
	timeProbesTotal      *prometheus.CounterVec
	correctionsTotal     *prometheus.CounterVec
	streamsEndedTotal    prometheus.Counter
	chatMessagesTotal    prometheus.Counter
	activeViewers        prometheus.Gauge
	websocketConnections prometheus.Gauge
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	timeProbesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulive_time_probes_total",
		Help: "Total number of server time probes by result",
	}, []string{"result"})
	correctionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulive_drift_corrections_total",
		Help: "Total number of playback drift corrections by target role",
	}, []string{"role"})
	streamsEndedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulive_streams_ended_total",
		Help: "Total number of streams that reached their natural end",
	})
	chatMessagesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulive_chat_messages_total",
		Help: "Total number of chat messages accepted",
	})
	activeViewers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulive_active_viewers",
		Help: "Number of viewers with a live heartbeat across all sessions",
	})
	websocketConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulive_websocket_connections",
		Help: "Number of open websocket connections",
	})

	registry.MustRegister(
		timeProbesTotal,
		correctionsTotal,
		streamsEndedTotal,
		chatMessagesTotal,
		activeViewers,
		websocketConnections,
	)

	return &Metrics{
		registry:             registry,
		timeProbesTotal:      timeProbesTotal,
		correctionsTotal:     correctionsTotal,
		streamsEndedTotal:    streamsEndedTotal,
		chatMessagesTotal:    chatMessagesTotal,
		activeViewers:        activeViewers,
		websocketConnections: websocketConnections,
	}
}

// RecordProbe counts a server time probe.
func (m *Metrics) RecordProbe(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.timeProbesTotal.WithLabelValues(result).Inc()
}

// RecordCorrection counts a hard seek issued against a playback target.
func (m *Metrics) RecordCorrection(role string) {
	m.correctionsTotal.WithLabelValues(role).Inc()
}

// RecordStreamEnd counts a naturally detected stream end.
func (m *Metrics) RecordStreamEnd() {
	m.streamsEndedTotal.Inc()
}

// RecordChatMessage counts an accepted chat message.
func (m *Metrics) RecordChatMessage() {
	m.chatMessagesTotal.Inc()
}

// SetActiveViewers sets the active viewers gauge.
func (m *Metrics) SetActiveViewers(n int) {
	m.activeViewers.Set(float64(n))
}

// ConnectionOpened increments the websocket connections gauge.
func (m *Metrics) ConnectionOpened() {
	m.websocketConnections.Inc()
}

// ConnectionClosed decrements the websocket connections gauge.
func (m *Metrics) ConnectionClosed() {
	m.websocketConnections.Dec()
}

// Handler returns an http.Handler that serves the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
