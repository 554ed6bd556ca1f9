// Package metrics exposes Prometheus instrumentation for the gatherly
// server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatherly",
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status code.",
	}, []string{"endpoint", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatherly",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by endpoint and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "method"})

	feedBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatherly",
		Name:      "feed_builds_total",
		Help:      "Completed feed builds.",
	})

	feedBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gatherly",
		Name:      "feed_build_duration_seconds",
		Help:      "Time spent grouping and labeling one feed.",
		Buckets:   prometheus.DefBuckets,
	})

	feedItems = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gatherly",
		Name:      "feed_items",
		Help:      "Series rows returned per feed build.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})
)

func RecordHTTPRequest(endpoint, method, status string) {
	httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint, method string, d time.Duration) {
	httpRequestDuration.WithLabelValues(endpoint, method).Observe(d.Seconds())
}

func RecordFeedBuild(d time.Duration, items int) {
	feedBuilds.Inc()
	feedBuildDuration.Observe(d.Seconds())
	feedItems.Observe(float64(items))
}

// Handler serves the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
