package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "traitforge",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traitforge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "traitforge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "route"},
	)

	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traitforge",
			Subsystem: "compose",
			Name:      "runs_total",
			Help:      "Composition pipeline runs by terminal stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "traitforge",
			Subsystem: "compose",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each composition pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~30s
		},
		[]string{"stage"},
	)

	pendingReconciliation = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "traitforge",
			Subsystem: "compose",
			Name:      "unlinked_pins_total",
			Help:      "Content pinned but never linked to its master record.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		pipelineRuns,
		stageDuration,
		pendingReconciliation,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "/metrics" {
			c.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}

		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveStage records the time a pipeline run spent in one stage.
func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRun counts a finished pipeline run. stage is where it stopped.
func RecordRun(stage string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "succeeded"
	}
	pipelineRuns.WithLabelValues(stage, outcome).Inc()
}

func RecordUnlinkedPin() {
	pendingReconciliation.Inc()
}
