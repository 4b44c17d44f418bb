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

// Collector owns the service's Prometheus registry and instruments.
type Collector struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	syncDuration    *prometheus.HistogramVec
	syncedItems     prometheus.Counter
	jwksRefreshes   *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "homesync",
				Name:      "http_request_duration_seconds",
				Help:      "Time taken to serve API requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		syncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "homesync",
				Name:      "shopping_sync_duration_seconds",
				Help:      "Time taken to reconcile a weekly shopping list",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"outcome"},
		),
		syncedItems: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "homesync",
				Name:      "shopping_sync_items_inserted_total",
				Help:      "Shopping list items inserted by reconciliation",
			},
		),
		jwksRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "homesync",
				Name:      "jwks_refreshes_total",
				Help:      "Key set fetches by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		c.requestDuration,
		c.syncDuration,
		c.syncedItems,
		c.jwksRefreshes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordSync records one reconciliation run.
func (c *Collector) RecordSync(outcome string, d time.Duration, inserted int) {
	c.syncDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if inserted > 0 {
		c.syncedItems.Add(float64(inserted))
	}
}

// RecordJWKSRefresh counts a key set fetch.
func (c *Collector) RecordJWKSRefresh(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.jwksRefreshes.WithLabelValues(result).Inc()
}

// Middleware observes the latency of every request by matched route.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.requestDuration.
			WithLabelValues(ctx.Request.Method, route, strconv.Itoa(ctx.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
