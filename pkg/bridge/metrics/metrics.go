// Package metrics holds the relay's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	CallsActive  prometheus.Gauge
	CallsTotal   *prometheus.CounterVec
	CallDuration prometheus.Histogram

	AudioBytesTotal *prometheus.CounterVec
	ToolCallsTotal  *prometheus.CounterVec
	UpstreamErrors  prometheus.Counter
	DroppedFrames   *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicebridge"
	}

	registry := prometheus.NewRegistry()

	callsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "calls_active",
		Help:      "Number of live bridged calls",
	})

	callsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_total",
		Help:      "Total bridged calls by terminal status",
	}, []string{"status"})

	callDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "call_duration_seconds",
		Help:      "Bridged call duration in seconds",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	})

	audioBytesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_bytes_total",
		Help:      "Audio bytes relayed by direction",
	}, []string{"direction"})

	toolCallsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Tool calls handled by tool name",
	}, []string{"tool"})

	upstreamErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_errors_total",
		Help:      "Protocol error events received from the AI endpoint",
	})

	droppedFrames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_frames_total",
		Help:      "Malformed frames dropped by source",
	}, []string{"source"})

	registry.MustRegister(
		callsActive,
		callsTotal,
		callDuration,
		audioBytesTotal,
		toolCallsTotal,
		upstreamErrors,
		droppedFrames,
	)

	return &Metrics{
		registry:        registry,
		CallsActive:     callsActive,
		CallsTotal:      callsTotal,
		CallDuration:    callDuration,
		AudioBytesTotal: audioBytesTotal,
		ToolCallsTotal:  toolCallsTotal,
		UpstreamErrors:  upstreamErrors,
		DroppedFrames:   droppedFrames,
	}
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCallStart marks a call live.
func (m *Metrics) RecordCallStart() {
	if m == nil {
		return
	}
	m.CallsActive.Inc()
}

// RecordCallEnd marks a call finished with a terminal status
// ("completed", "failed", or "upstream_connect_failed").
func (m *Metrics) RecordCallEnd(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CallsActive.Dec()
	m.CallsTotal.WithLabelValues(status).Inc()
	m.CallDuration.Observe(duration.Seconds())
}

// RecordAudio counts relayed audio bytes ("inbound" or "outbound").
func (m *Metrics) RecordAudio(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordToolCall counts one handled tool call.
func (m *Metrics) RecordToolCall(tool string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool).Inc()
}

// RecordUpstreamError counts one upstream protocol error event.
func (m *Metrics) RecordUpstreamError() {
	if m == nil {
		return
	}
	m.UpstreamErrors.Inc()
}

// RecordDroppedFrame counts one malformed frame ("media" or "upstream").
func (m *Metrics) RecordDroppedFrame(source string) {
	if m == nil {
		return
	}
	m.DroppedFrames.WithLabelValues(source).Inc()
}
