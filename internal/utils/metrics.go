package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	registry *prometheus.Registry

	requests       prometheus.Counter
	errors         prometheus.Counter
	operationTimes *prometheus.HistogramVec
	connections    prometheus.Gauge
	messagesSent   *prometheus.CounterVec
	rejections     prometheus.Counter

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lostfound_requests_total",
			Help: "HTTP requests handled.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lostfound_errors_total",
			Help: "HTTP requests that ended in an error response.",
		}),
		operationTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lostfound_operation_duration_seconds",
			Help:    "Latency of messaging operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lostfound_ws_connections",
			Help: "Currently joined real-time connections.",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lostfound_messages_sent_total",
			Help: "Messages persisted, by kind.",
		}, []string{"kind"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lostfound_moderation_rejections_total",
			Help: "Text messages rejected by the moderation filter.",
		}),
		systemStartTime: time.Now(),
	}
	mc.registry.MustRegister(
		mc.requests,
		mc.errors,
		mc.operationTimes,
		mc.connections,
		mc.messagesSent,
		mc.rejections,
	)
	return mc
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.requests.Inc()
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.errors.Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operationTimes.WithLabelValues(operationName).Observe(duration.Seconds())
}

func (mc *MetricsCollector) ConnectionOpened() {
	mc.connections.Inc()
}

func (mc *MetricsCollector) ConnectionClosed() {
	mc.connections.Dec()
}

func (mc *MetricsCollector) MessageSent(kind string) {
	mc.messagesSent.WithLabelValues(kind).Inc()
}

func (mc *MetricsCollector) ContentRejected() {
	mc.rejections.Inc()
}

// Uptime reports how long the collector has existed.
func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.systemStartTime)
}

// Handler exposes the collector's registry in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
