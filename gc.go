package concur

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// StartGarbageCollector launches a background goroutine that wakes every
// interval and removes all expired entries. It runs until ctx is canceled.
func (c *ConcurrentCache[K, V]) StartGarbageCollector(ctx context.Context, interval time.Duration) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.config.Clock.After(interval):
				c.sweep(ctx)
			}
		}
	}()
}

func (c *ConcurrentCache[K, V]) sweep(ctx context.Context) {
	_, span := c.obs.tracer.StartSpan(ctx, SpanCacheGC)
	defer span.Finish()

	start := c.config.Clock.Now()
	removed := c.CleanupExpired()
	elapsed := c.config.Clock.Now().Sub(start).Seconds()

	c.obs.metrics.Counter(MetricCacheGCRuns).Inc()
	if removed > 0 {
		c.obs.metrics.Counter(MetricCacheGCRemoved).Add(float64(removed))
	}
	c.obs.metrics.Gauge(MetricCacheSize).Set(float64(c.Size()))

	capitan.Info(ctx, SignalCacheGCSwept,
		FieldCacheSize.Field(c.Size()),
		FieldRemovedCount.Field(removed),
	)
	_ = c.obs.gcSweep.Emit(ctx, EventGCSweep, GCSweepEvent{
		Removed:  removed,
		Size:     c.Size(),
		Duration: elapsed,
	})
}
