// Package observability exposes Prometheus metrics and health probes.
package observability

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelctx_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixelctx_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pixelctx_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	// Model call metrics
	chatCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelctx_chat_calls_total",
			Help: "Total number of model calls",
		},
		[]string{"provider", "status"},
	)

	chatCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixelctx_chat_call_duration_seconds",
			Help:    "Model call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	// Token accounting
	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelctx_tokens_total",
			Help: "Estimated tokens by kind (vision, text, text_equivalent)",
		},
		[]string{"kind"},
	)

	tokenSavings = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pixelctx_token_savings",
			Help:    "Estimated token savings per call; negative when the image cost more",
			Buckets: []float64{-500, -250, -100, 0, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	renderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pixelctx_render_duration_seconds",
			Help:    "Context image render duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	contextImageHeight = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pixelctx_context_image_height_pixels",
			Help:    "Height of rendered context images",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		},
	)

	// System metrics
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pixelctx_active_sessions",
			Help: "Number of registered sessions",
		},
	)

	goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pixelctx_goroutines",
			Help: "Number of goroutines",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the metrics with the default registry
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			rateLimitedTotal,
			chatCallsTotal,
			chatCallDuration,
			tokensTotal,
			tokenSavings,
			renderDuration,
			contextImageHeight,
			activeSessions,
			goroutines,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRateLimited counts a rejected request
func RecordRateLimited() {
	rateLimitedTotal.Inc()
}

// RecordChatCall records a model call outcome
func RecordChatCall(provider, status string, duration time.Duration) {
	chatCallsTotal.WithLabelValues(provider, status).Inc()
	chatCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordTokens records the estimated token breakdown of one call
func RecordTokens(vision, text, textEquivalent, savings int) {
	tokensTotal.WithLabelValues("vision").Add(float64(vision))
	tokensTotal.WithLabelValues("text").Add(float64(text))
	tokensTotal.WithLabelValues("text_equivalent").Add(float64(textEquivalent))
	tokenSavings.Observe(float64(savings))
}

// RecordRender records the duration and height of a rendered context image
func RecordRender(duration time.Duration, height int) {
	renderDuration.Observe(duration.Seconds())
	contextImageHeight.Observe(float64(height))
}

// SetActiveSessions sets the registered sessions gauge
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// UpdateRuntimeMetrics refreshes the goroutines gauge
func UpdateRuntimeMetrics() {
	goroutines.Set(float64(runtime.NumGoroutine()))
}
