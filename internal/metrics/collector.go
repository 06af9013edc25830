// Package metrics wraps prometheus/client_golang behind the counters,
// histograms, and gauges the rest of the process records against: message
// throughput, poll/append latency, cache hit rate, retention sweeps, and
// consumer-group lag. Grounded on vaultaire's internal/api/metrics.go
// (CounterVec/HistogramVec registered against a private *prometheus.Registry,
// exposed via promhttp.HandlerFor) generalized from its one HTTP-request
// metric set to the message-streaming metrics this process emits.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CollectorConfig names the metric namespace (e.g. "flowvault").
type CollectorConfig struct {
	Namespace string
}

// Collector owns every metric this process records, plus its own registry
// so more than one System in a test process never collides on the global
// default registry the way a package-level prometheus.MustRegister would.
type Collector struct {
	registry *prometheus.Registry

	MessagesAppended *prometheus.CounterVec   // stream, topic
	BytesAppended    *prometheus.CounterVec   // stream, topic
	MessagesPolled   *prometheus.CounterVec   // stream, topic
	AppendLatency    *prometheus.HistogramVec // stream, topic
	PollLatency      *prometheus.HistogramVec // stream, topic
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheEvictions    prometheus.Counter
	SegmentsDeleted   prometheus.Counter
	RetentionSweeps   prometheus.Counter
	StateLogAppends   prometheus.Counter
	ConsumerGroupLag  *prometheus.GaugeVec // stream, topic, group
}

// NewCollector builds and registers every metric under namespace.
func NewCollector(cfg *CollectorConfig) *Collector {
	if cfg == nil {
		cfg = &CollectorConfig{}
	}
	ns := cfg.Namespace
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "messages_appended_total", Help: "Messages appended to a partition.",
		}, []string{"stream", "topic"}),
		BytesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "bytes_appended_total", Help: "Payload bytes appended to a partition.",
		}, []string{"stream", "topic"}),
		MessagesPolled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "messages_polled_total", Help: "Messages returned by a poll.",
		}, []string{"stream", "topic"}),
		AppendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "append_duration_seconds", Help: "SendMessages handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stream", "topic"}),
		PollLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "poll_duration_seconds", Help: "PollMessages handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stream", "topic"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_hits_total", Help: "Message cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_misses_total", Help: "Message cache misses.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_evictions_total", Help: "Message cache entries evicted under memory pressure.",
		}),
		SegmentsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "segments_deleted_total", Help: "Segments removed by a retention sweep.",
		}),
		RetentionSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "retention_sweeps_total", Help: "Retention sweeps run across every topic.",
		}),
		StateLogAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "state_log_appends_total", Help: "Control-plane records appended to the state log.",
		}),
		ConsumerGroupLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "consumer_group_lag", Help: "Partition high watermark minus a consumer group's committed offset.",
		}, []string{"stream", "topic", "group"}),
	}

	registry.MustRegister(
		c.MessagesAppended, c.BytesAppended, c.MessagesPolled,
		c.AppendLatency, c.PollLatency,
		c.CacheHits, c.CacheMisses, c.CacheEvictions,
		c.SegmentsDeleted, c.RetentionSweeps, c.StateLogAppends,
		c.ConsumerGroupLag,
	)
	return c
}

// Handler exposes the registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
