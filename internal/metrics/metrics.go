// Package metrics exposes Prometheus instrumentation for the chat client:
// socket traffic, stale frame drops, history fetches and polling.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FramesReceived counts inbound socket frames by kind (error, content, ignored, malformed).
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_ws_frames_received_total",
			Help: "Total number of inbound WebSocket frames by kind",
		},
		[]string{"kind"},
	)

	// FramesSent counts outbound actions.
	FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_ws_frames_sent_total",
			Help: "Total number of outbound WebSocket actions",
		},
		[]string{"action"},
	)

	// SendFailures counts refused or failed sends.
	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_ws_send_failures_total",
			Help: "Total number of WebSocket sends that were refused or failed",
		},
		[]string{"reason"}, // "not_open", "rate_limited", "write"
	)

	// SocketState is the current socket state (0 idle, 1 connecting, 2 open, 3 closed).
	SocketState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatline_ws_state",
			Help: "Current WebSocket state (0 idle, 1 connecting, 2 open, 3 closed)",
		},
	)

	// Reconnects counts reconnection attempts.
	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_ws_reconnects_total",
			Help: "Total number of WebSocket reconnection attempts",
		},
		[]string{"result"},
	)

	// StaleFrames counts content frames dropped because they targeted an inactive session.
	StaleFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatline_stale_frames_total",
			Help: "Total number of content frames dropped for a non-active session",
		},
	)

	// HistoryFetches counts history page fetches by result (ok, error, stale).
	HistoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_history_fetch_total",
			Help: "Total number of message history page fetches",
		},
		[]string{"result"},
	)

	// PollTicks counts polling fallback ticks that issued a fetch.
	PollTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatline_poll_ticks_total",
			Help: "Total number of polling fallback fetches",
		},
	)

	// SessionErrors counts error frames received.
	SessionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatline_session_errors_total",
			Help: "Total number of session error frames received",
		},
	)

	// BreakerState is the REST circuit breaker state (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatline_circuit_breaker_state",
			Help: "REST circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
