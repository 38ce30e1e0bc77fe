package tracker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazehub/sessiontrack/internal/cache"
)

// Metrics exposes the engine's operational counters.
type Metrics struct {
	FlushesTotal     prometheus.Counter
	FlushFailures    prometheus.Counter
	MutationsApplied prometheus.Counter
	MutationsDropped prometheus.Counter
	ArchiveFailures  prometheus.Counter
}

// NewMetrics registers the engine metrics. The queue-depth gauge and the
// cache hit/miss counters read live state, so nil queue or cache simply skips
// them.
func NewMetrics(reg prometheus.Registerer, queue *Queue, qcache *cache.Cache) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		FlushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiontrack",
			Name:      "flushes_total",
			Help:      "Total number of successful batch flushes",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiontrack",
			Name:      "flush_failures_total",
			Help:      "Total number of failed batch flushes, each of which requeued its batch",
		}),
		MutationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiontrack",
			Name:      "mutations_applied_total",
			Help:      "Total number of queued mutations flushed to the store",
		}),
		MutationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiontrack",
			Name:      "mutations_dropped_total",
			Help:      "Total number of mutations dropped because their session no longer exists",
		}),
		ArchiveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiontrack",
			Name:      "archive_failures_total",
			Help:      "Total number of failed monthly archival attempts",
		}),
	}
	reg.MustRegister(m.FlushesTotal, m.FlushFailures, m.MutationsApplied,
		m.MutationsDropped, m.ArchiveFailures)

	if queue != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "sessiontrack",
			Name:      "queue_depth",
			Help:      "Number of mutations waiting in the batch queue",
		}, func() float64 {
			return float64(queue.Len())
		}))
	}
	if qcache != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sessiontrack",
			Name:      "cache_hits_total",
			Help:      "Total number of query cache hits",
		}, func() float64 {
			hits, _ := qcache.Stats()
			return float64(hits)
		}))
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sessiontrack",
			Name:      "cache_misses_total",
			Help:      "Total number of query cache misses",
		}, func() float64 {
			_, misses := qcache.Stats()
			return float64(misses)
		}))
	}

	return m
}
