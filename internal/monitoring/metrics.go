package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsSwept   prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Generation metrics
	GenerationsStarted   prometheus.Counter
	GenerationsCompleted prometheus.Counter
	GenerationsAborted   prometheus.Counter
	GenerationsFailed    prometheus.Counter
	GenerationDuration   prometheus.Histogram
	TokensTotal          *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector on its own registry, so multiple
// instances (one per test) never collide.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry:  registry,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_sessions_active",
				Help: "Number of live sessions",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_sessions_swept_total",
				Help: "Total number of sessions destroyed by the idle sweep",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		GenerationsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_generations_started_total",
				Help: "Total number of generations started",
			},
		),
		GenerationsCompleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_generations_completed_total",
				Help: "Total number of generations completed",
			},
		),
		GenerationsAborted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_generations_aborted_total",
				Help: "Total number of generations cancelled by the client",
			},
		),
		GenerationsFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_generations_failed_total",
				Help: "Total number of generations that failed at the provider",
			},
		),
		GenerationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_generation_duration_seconds",
				Help:    "Generation duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_tokens_total",
				Help: "Total tokens consumed, by kind",
			},
			[]string{"kind"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_uptime_seconds",
				Help: "Gateway uptime in seconds",
			},
		),
	}

	return m
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// UpdateUptime refreshes the uptime gauge. The server calls it on a ticker.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWSMessage records a WebSocket frame. Direction is "in" or "out".
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordTokens records a completion's token counts.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.TokensTotal.WithLabelValues("prompt").Add(float64(prompt))
	m.TokensTotal.WithLabelValues("completion").Add(float64(completion))
}
