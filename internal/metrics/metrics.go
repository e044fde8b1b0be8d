// Package metrics holds the prometheus collectors for the indexer and the
// HTTP layer. All recording methods are safe to call on a nil *Collector.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	eventsTotal   *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	currentBlock  prometheus.Gauge
	ticksTotal    prometheus.Counter
	tickDuration  prometheus.Histogram
	suppressed    prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	rateLimitHits *prometheus.CounterVec
}

// NewCollector registers every metric under namespace in a private registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "researchdao"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_total",
			Help:      "Decoded contract events handled by the indexer.",
		},
		[]string{"event", "result"}, // result: stored/duplicate/skipped
	)
	c.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "errors_total",
			Help:      "Indexer errors that were logged and skipped.",
		},
		[]string{"stage"},
	)
	c.currentBlock = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "current_block",
		Help:      "Last block fully processed by the indexer.",
	})
	c.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "poll_ticks_total",
		Help:      "Poll ticks executed.",
	})
	c.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "poll_tick_duration_seconds",
		Help:      "Duration of one poll tick.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	c.suppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "suppressed_entries_total",
		Help:      "On-chain entries hidden as duplicates of database investments.",
	})
	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)
	c.httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	c.rateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "ratelimit_block_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		},
		[]string{"route"},
	)

	c.registry.MustRegister(
		c.eventsTotal, c.errorsTotal, c.currentBlock, c.ticksTotal, c.tickDuration,
		c.suppressed, c.httpRequests, c.httpLatency, c.rateLimitHits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordEvent(event, result string) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(event, result).Inc()
}

func (c *Collector) RecordError(stage string) {
	if c == nil {
		return
	}
	c.errorsTotal.WithLabelValues(stage).Inc()
}

func (c *Collector) SetCurrentBlock(block uint64) {
	if c == nil {
		return
	}
	c.currentBlock.Set(float64(block))
}

func (c *Collector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.ticksTotal.Inc()
	c.tickDuration.Observe(d.Seconds())
}

func (c *Collector) AddSuppressed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.suppressed.Add(float64(n))
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) RecordRateLimited(route string) {
	if c == nil {
		return
	}
	c.rateLimitHits.WithLabelValues(route).Inc()
}
