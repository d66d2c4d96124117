package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exports domain events and HTTP latencies on its own
// registry, so several instances can coexist in one process.
type PrometheusRecorder struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	requests *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the collectors under namespace.
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Domain events by name.",
	}, []string{"event"})
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	registry.MustRegister(
		events,
		requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &PrometheusRecorder{
		registry: registry,
		events:   events,
		requests: requests,
	}
}

// Increment counts one occurrence of event.
func (recorder *PrometheusRecorder) Increment(event string) {
	recorder.events.WithLabelValues(event).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (recorder *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(recorder.registry, promhttp.HandlerOpts{Registry: recorder.registry})
}

// GinMiddleware observes request latency labelled by the matched route.
func (recorder *PrometheusRecorder) GinMiddleware() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		started := time.Now()
		contextGin.Next()
		route := contextGin.FullPath()
		if route == "" {
			route = "unmatched"
		}
		recorder.requests.WithLabelValues(
			contextGin.Request.Method,
			route,
			strconv.Itoa(contextGin.Writer.Status()),
		).Observe(time.Since(started).Seconds())
	}
}
