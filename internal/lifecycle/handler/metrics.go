package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	certfsmDomainsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "certfsm_domains_total",
		Help: "Number of registered domains by lifecycle state.",
	}, []string{"state"})

	certfsmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certfsm_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	certfsmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "certfsm_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	certfsmOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certfsm_operations_started_total",
		Help: "Certificate authority operations scheduled, by operation.",
	}, []string{"operation"})

	certfsmSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "certfsm_expiry_sweeps_total",
		Help: "Background expiry sweeps completed.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request
// metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		certfsmRequestsTotal.WithLabelValues(method, path, status).Inc()
		certfsmRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordOperationStarted records a scheduled certificate operation.
func RecordOperationStarted(operation string) {
	certfsmOperationsTotal.WithLabelValues(operation).Inc()
}

// RecordExpirySweep records one completed background expiry sweep.
func RecordExpirySweep() {
	certfsmSweepsTotal.Inc()
}

// SetDomainStateGauge sets the domain count gauge for a lifecycle state.
func SetDomainStateGauge(state string, count float64) {
	certfsmDomainsTotal.WithLabelValues(state).Set(count)
}
