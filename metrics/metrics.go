// Package metrics exposes Prometheus instrumentation for the C12.18
// transport and C12.19 table layers. It is grounded on
// runZeroInc-sockstats/pkg/exporter, which wraps a small fixed set of
// prometheus.Collector instruments behind a narrow application-facing
// type rather than handing callers the raw client_golang API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the counters and histograms for one meter session's
// worth of protocol activity. A nil *Collector is valid and every
// method on it is a no-op, so instrumentation is entirely optional.
type Collector struct {
	registry *prometheus.Registry

	packetsSent     prometheus.Counter
	packetsReceived prometheus.Counter
	retransmits     prometheus.Counter
	serviceRetries  prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	serviceLatency  *prometheus.HistogramVec
}

// NewCollector registers a fresh instrument set on a new registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		packetsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optiprobe",
			Subsystem: "c1218",
			Name:      "packets_sent_total",
			Help:      "Number of C12.18 request packets written to the channel.",
		}),
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optiprobe",
			Subsystem: "c1218",
			Name:      "packets_received_total",
			Help:      "Number of C12.18 response packets read from the channel.",
		}),
		retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optiprobe",
			Subsystem: "c1218",
			Name:      "retransmits_total",
			Help:      "Number of packet retransmits triggered by a NAK or a missing ACK.",
		}),
		serviceRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optiprobe",
			Subsystem: "c1218",
			Name:      "service_retries_total",
			Help:      "Number of whole-service retries triggered by a Timeout.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optiprobe",
			Subsystem: "c1219",
			Name:      "table_cache_hits_total",
			Help:      "Number of table reads served from the table cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optiprobe",
			Subsystem: "c1219",
			Name:      "table_cache_misses_total",
			Help:      "Number of table reads that required a wire READ.",
		}),
		serviceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "optiprobe",
			Subsystem: "c1218",
			Name:      "service_latency_seconds",
			Help:      "Latency of a complete C12.18 service call, by opcode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"opcode"}),
	}
	c.registry.MustRegister(
		c.packetsSent,
		c.packetsReceived,
		c.retransmits,
		c.serviceRetries,
		c.cacheHits,
		c.cacheMisses,
		c.serviceLatency,
	)
	return c
}

// Registry exposes the underlying registry for HTTP exposition via
// promhttp.HandlerFor.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) PacketSent() {
	if c == nil {
		return
	}
	c.packetsSent.Inc()
}

func (c *Collector) PacketReceived() {
	if c == nil {
		return
	}
	c.packetsReceived.Inc()
}

func (c *Collector) Retransmit() {
	if c == nil {
		return
	}
	c.retransmits.Inc()
}

func (c *Collector) ServiceRetry() {
	if c == nil {
		return
	}
	c.serviceRetries.Inc()
}

func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// ObserveServiceLatency records how long a full service call for
// opcode took.
func (c *Collector) ObserveServiceLatency(opcode string, d time.Duration) {
	if c == nil {
		return
	}
	c.serviceLatency.WithLabelValues(opcode).Observe(d.Seconds())
}
