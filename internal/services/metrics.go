package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// WebSocket metrics
	WebSocketConnections prometheus.Gauge
	WebSocketMessages    *prometheus.CounterVec

	// Turn metrics
	Turns             prometheus.Counter
	AgentReplies      *prometheus.CounterVec
	GenerationRetries prometheus.Counter
	GenerationLatency prometheus.Histogram
	PayloadsExtracted *prometheus.CounterVec
}

// InitMetrics initializes the Prometheus metrics
func InitMetrics(connManager *ConnectionManager) *Metrics {
	metrics := &Metrics{
		// WebSocket active connections (gauge - can go up and down)
		WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "boardroom_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		}),

		// WebSocket messages by type (counter - only goes up)
		WebSocketMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_websocket_messages_total",
			Help: "Total number of WebSocket messages by type",
		}, []string{"type", "direction"}), // direction: "inbound" or "outbound"

		// Turns processed
		Turns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boardroom_turns_total",
			Help: "Total number of conversational turns processed",
		}),

		// Agent replies by outcome
		AgentReplies: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_agent_replies_total",
			Help: "Total number of agent replies by outcome",
		}, []string{"status"}), // "ok", "failed", "cancelled"

		// Retried generation calls
		GenerationRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boardroom_generation_retries_total",
			Help: "Total number of retried generation calls",
		}),

		// Generation latency histogram
		GenerationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "boardroom_generation_duration_seconds",
			Help:    "Model generation call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90}, // up to the per-call ceiling and beyond
		}),

		// Extracted side-channel payloads by kind
		PayloadsExtracted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_payloads_extracted_total",
			Help: "Total number of side-channel payloads extracted by kind",
		}, []string{"kind"}),
	}

	// Register a collector that reads the live count from ConnectionManager
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "boardroom_websocket_connections_current",
			Help: "Current number of active WebSocket connections (from connection manager)",
		},
		func() float64 {
			if connManager != nil {
				return float64(connManager.Count())
			}
			return 0
		},
	))

	return metrics
}

// RecordWebSocketConnect records a new WebSocket connection
func (m *Metrics) RecordWebSocketConnect() {
	m.WebSocketConnections.Inc()
}

// RecordWebSocketDisconnect records a WebSocket disconnection
func (m *Metrics) RecordWebSocketDisconnect() {
	m.WebSocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	m.WebSocketMessages.WithLabelValues(msgType, direction).Inc()
}

// RecordTurn records a processed turn
func (m *Metrics) RecordTurn() {
	m.Turns.Inc()
}

// RecordAgentReply records one agent reply outcome
func (m *Metrics) RecordAgentReply(status string) {
	m.AgentReplies.WithLabelValues(status).Inc()
}

// RecordGenerationRetry records a retried generation call
func (m *Metrics) RecordGenerationRetry() {
	m.GenerationRetries.Inc()
}

// RecordGenerationLatency records generation call latency
func (m *Metrics) RecordGenerationLatency(seconds float64) {
	m.GenerationLatency.Observe(seconds)
}

// RecordPayload records an extracted payload
func (m *Metrics) RecordPayload(kind string) {
	m.PayloadsExtracted.WithLabelValues(kind).Inc()
}
