// Package metrics exposes Prometheus metrics for the mirror.
//
// Metrics:
//   - <ns>_requests_total: proxied requests by route kind and status code
//   - <ns>_upstream_duration_seconds: time to upstream response headers
//   - <ns>_stream_bytes_total: bytes relayed on streaming endpoints
//   - <ns>_conversations_recorded_total: conversations attributed to share users
//   - <ns>_rewrite_fallbacks_total: bodies passed through because a rewrite failed
//   - <ns>_stream_inspection_failures_total: streams whose decoded copy was abandoned
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records proxy metrics on its own registry
type Collector struct {
	registry *prometheus.Registry

	requestsTotal         *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
	streamBytes           prometheus.Counter
	conversationsRecorded prometheus.Counter
	rewriteFallbacks      *prometheus.CounterVec
	inspectionFailures    prometheus.Counter
}

// NewCollector creates and registers the proxy metrics. If registry is nil a
// new registry is created.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of proxied requests",
			},
			[]string{"kind", "code"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Time until the upstream returned response headers",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"host"},
		),
		streamBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Bytes relayed to clients on streaming endpoints",
		}),
		conversationsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_recorded_total",
			Help:      "Conversations attributed to share users",
		}),
		rewriteFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rewrite_fallbacks_total",
				Help:      "Response bodies passed through unchanged because rewriting failed",
			},
			[]string{"kind"},
		),
		inspectionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_inspection_failures_total",
			Help:      "Streams whose decoded copy could not be inspected",
		}),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.upstreamDuration,
		c.streamBytes,
		c.conversationsRecorded,
		c.rewriteFallbacks,
		c.inspectionFailures,
	)
	return c
}

// RecordRequest counts a finished request
func (c *Collector) RecordRequest(kind string, code int) {
	c.requestsTotal.WithLabelValues(kind, strconv.Itoa(code)).Inc()
}

// ObserveUpstream records the time an upstream took to answer
func (c *Collector) ObserveUpstream(host string, d time.Duration) {
	c.upstreamDuration.WithLabelValues(host).Observe(d.Seconds())
}

// AddStreamBytes adds relayed stream bytes
func (c *Collector) AddStreamBytes(n int64) {
	c.streamBytes.Add(float64(n))
}

// RecordConversation counts an attributed conversation
func (c *Collector) RecordConversation() {
	c.conversationsRecorded.Inc()
}

// RecordRewriteFallback counts a body that could not be rewritten
func (c *Collector) RecordRewriteFallback(kind string) {
	c.rewriteFallbacks.WithLabelValues(kind).Inc()
}

// RecordInspectionFailure counts a stream whose decoded copy was abandoned
func (c *Collector) RecordInspectionFailure() {
	c.inspectionFailures.Inc()
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
