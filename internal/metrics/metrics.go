// Package metrics exposes Prometheus instrumentation for the HTTP API and
// the indexing and search paths.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "xappy",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xappy",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	documentsIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xappy",
			Name:      "documents_indexed_total",
			Help:      "Total number of documents processed and committed",
		},
	)

	searchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xappy",
			Name:      "searches_total",
			Help:      "Total number of search evaluations",
		},
	)

	searchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "xappy",
			Name:      "search_duration_seconds",
			Help:      "Search evaluation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestDuration,
		httpRequestsTotal,
		documentsIndexed,
		searchesTotal,
		searchDuration,
	)
}

// Middleware records request duration and count per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		duration := time.Since(start).Seconds()

		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RecordDocumentsIndexed counts documents processed and committed.
func RecordDocumentsIndexed(n int) {
	documentsIndexed.Add(float64(n))
}

// RecordSearch counts one search evaluation and its latency.
func RecordSearch(duration time.Duration) {
	searchesTotal.Inc()
	searchDuration.Observe(duration.Seconds())
}
