package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dashjoin/internal/status"
)

const namespace = "dashjoin"

// Collector owns a private registry with the dashjoin series plus Go runtime
// and process collectors.
type Collector struct {
	registry *prometheus.Registry

	segmentsDetected prometheus.Counter
	parseFailures    prometheus.Counter
	segmentsDropped  prometheus.Counter
	deleteFailures   prometheus.Counter
	outcomes         *prometheus.CounterVec
	mergesInFlight   prometheus.Gauge
	mergeSeconds     prometheus.Histogram
	spanSeconds      prometheus.Histogram
	sessionStarted   prometheus.Gauge
}

// New builds a collector with all series registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		segmentsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_detected_total",
			Help:      "Segments accepted into the ledger.",
		}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Files whose names did not match the timestamp pattern.",
		}),
		segmentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_discarded_total",
			Help:      "Segments dropped because their group overlapped a merged range.",
		}),
		deleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delete_failures_total",
			Help:      "Source segments left on disk after a successful merge.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Finished merge jobs by outcome.",
		}, []string{"outcome"}),
		mergesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merges_in_flight",
			Help:      "Merge jobs queued or running.",
		}),
		mergeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Wall time spent by a worker on one merge job.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		spanSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merged_span_seconds",
			Help:      "Capture time covered by each merged output.",
			Buckets:   []float64{60, 300, 900, 1800, 3600, 7200, 14400},
		}),
		sessionStarted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_start_time_seconds",
			Help:      "Unix time the current session started.",
		}),
	}
	// Pre-create outcome series so they export as zero.
	for _, outcome := range []string{"merged", "failed", "abandoned"} {
		c.outcomes.WithLabelValues(outcome)
	}

	c.registry.MustRegister(
		c.segmentsDetected,
		c.parseFailures,
		c.segmentsDropped,
		c.deleteFailures,
		c.outcomes,
		c.mergesInFlight,
		c.mergeSeconds,
		c.spanSeconds,
		c.sessionStarted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Publish updates series from evt.
func (c *Collector) Publish(evt status.Event) {
	switch evt.Kind {
	case status.KindSessionStarted:
		c.sessionStarted.Set(float64(evt.Time.Unix()))
	case status.KindSegmentDetected:
		c.segmentsDetected.Inc()
	case status.KindParseFailed:
		c.parseFailures.Inc()
	case status.KindSegmentDiscarded:
		c.segmentsDropped.Inc()
	case status.KindDeleteFailed:
		c.deleteFailures.Inc()
	case status.KindMergeQueued:
		c.mergesInFlight.Inc()
	case status.KindGroupMerged:
		c.finish("merged", evt)
		if !evt.Start.IsZero() && !evt.End.IsZero() {
			c.spanSeconds.Observe(evt.End.Sub(evt.Start).Seconds())
		}
	case status.KindMergeFailed:
		c.finish("failed", evt)
	case status.KindMergeAbandoned:
		c.finish("abandoned", evt)
	}
}

func (c *Collector) finish(outcome string, evt status.Event) {
	c.mergesInFlight.Dec()
	c.outcomes.WithLabelValues(outcome).Inc()
	if evt.Elapsed > 0 {
		c.mergeSeconds.Observe(evt.Elapsed.Seconds())
	}
}
