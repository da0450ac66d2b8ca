package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP collectors. The route label is the Gin template so ids in paths do not
// explode cardinality; unmatched requests share one "unmatched" series.
var (
	httpReqs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailsweep",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, status and idempotent replay.",
		},
		[]string{"method", "route", "status", "replayed"},
	)

	httpLat = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailsweep",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			// Super actions pace provider calls in 2.5s batches and run long.
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route"},
	)

	httpInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mailsweep",
			Subsystem: "http",
			Name:      "requests_inflight",
			Help:      "HTTP requests currently being served.",
		},
	)

	httpRespSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailsweep",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response sizes.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8), // 256B..4MiB
		},
		[]string{"method", "route"},
	)
)

// Metrics instruments every request; mount promhttp.Handler on /metrics.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status()), strconv.FormatBool(IsReplay(c))).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}
