package concur

import (
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric keys.
const (
	MetricCacheHits                = metricz.Key("cache.hits.total")
	MetricCacheMisses              = metricz.Key("cache.misses.total")
	MetricCacheRecomputes          = metricz.Key("cache.recomputes.total")
	MetricCacheRecomputesCoalesced = metricz.Key("cache.recomputes.coalesced.total")
	MetricCacheGCRemoved           = metricz.Key("cache.gc.removed.total")
	MetricCacheGCRuns              = metricz.Key("cache.gc.runs.total")
	MetricCacheSize                = metricz.Key("cache.size")
)

// Span keys.
const (
	SpanCacheGet       = tracez.Key("cache.get")
	SpanCachePut       = tracez.Key("cache.put")
	SpanCacheRecompute = tracez.Key("cache.recompute")
	SpanCacheGC        = tracez.Key("cache.gc.sweep")
)

// Span tags.
const (
	TagCacheOutcome = tracez.Tag("outcome")
	TagCacheKey     = tracez.Tag("key")
)

// GCSweepEvent is emitted via hooks after each garbage-collection pass.
type GCSweepEvent struct {
	Removed  int
	Size     int
	Duration float64
}

// Hook event key.
const EventGCSweep hookz.Key = "cache.gc.swept"

// cacheObservability bundles the metrics registry, tracer, and hooks for a
// single ConcurrentCache instance.
type cacheObservability struct {
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	gcSweep *hookz.Hooks[GCSweepEvent]
}

func newCacheObservability() *cacheObservability {
	metrics := metricz.New()
	metrics.Counter(MetricCacheHits)
	metrics.Counter(MetricCacheMisses)
	metrics.Counter(MetricCacheRecomputes)
	metrics.Counter(MetricCacheRecomputesCoalesced)
	metrics.Counter(MetricCacheGCRemoved)
	metrics.Counter(MetricCacheGCRuns)
	metrics.Gauge(MetricCacheSize)

	return &cacheObservability{
		metrics: metrics,
		tracer:  tracez.New(),
		gcSweep: hookz.New[GCSweepEvent](),
	}
}

func (o *cacheObservability) close() {
	o.tracer.Close()
	o.gcSweep.Close()
}
