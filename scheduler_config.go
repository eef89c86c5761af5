package concur

import (
	"runtime"
	"time"

	"github.com/zoobzio/clockz"
)

// SchedulerConfig controls the shape and behavior of a Scheduler.
// NewScheduler fills in zero-valued fields as described on normalize; start
// from DefaultSchedulerConfig to get work stealing and the supervisor on.
type SchedulerConfig struct {
	// NumWorkers is the number of worker goroutines, each with its own
	// queue. Defaults to runtime.NumCPU().
	NumWorkers int

	// StaleTaskTimeout is how long a task may sit in a worker queue before
	// the supervisor reports it as stale. Zero is a
	// deliberate, valid setting: it disables the supervisor entirely
	// (Start never spawns it). A negative value is treated as unset and
	// defaults to 30s; only negative values fall back to the default.
	StaleTaskTimeout time.Duration

	// EnableWorkStealing allows idle workers to steal from the tail of a
	// busy peer's queue instead of blocking. DefaultSchedulerConfig sets it
	// true; normalize leaves a false value as it is.
	EnableWorkStealing bool

	// SupervisorInterval is how often the supervisor scans queues for
	// stale tasks. Defaults to 500ms.
	SupervisorInterval time.Duration

	// Clock supplies time for submission timestamps and the supervisor's
	// staleness checks. Defaults to clockz.RealClock; tests inject a
	// clockz.FakeClock for deterministic staleness scenarios.
	Clock clockz.Clock
}

// DefaultSchedulerConfig returns a SchedulerConfig with one worker per
// logical CPU, work stealing enabled, and a 30s stale-task timeout.
func DefaultSchedulerConfig() SchedulerConfig {
	n := runtime.NumCPU()
	if n < 1 {
		n = 4
	}
	return SchedulerConfig{
		NumWorkers:         n,
		StaleTaskTimeout:   30 * time.Second,
		EnableWorkStealing: true,
		SupervisorInterval: 500 * time.Millisecond,
		Clock:              clockz.RealClock,
	}
}

// normalize fills in zero-valued numeric/duration/clock fields with their
// defaults so a partially populated SchedulerConfig is still safe to use.
// EnableWorkStealing is taken at face value: callers who want it on should
// start from DefaultSchedulerConfig, which sets it true. StaleTaskTimeout
// is the one field where zero is not "unset" — it deliberately disables the
// supervisor — so only a negative value is coalesced to the default.
func (c SchedulerConfig) normalize() SchedulerConfig {
	if c.NumWorkers <= 0 {
		c.NumWorkers = DefaultSchedulerConfig().NumWorkers
	}
	if c.StaleTaskTimeout < 0 {
		c.StaleTaskTimeout = DefaultSchedulerConfig().StaleTaskTimeout
	}
	if c.SupervisorInterval <= 0 {
		c.SupervisorInterval = DefaultSchedulerConfig().SupervisorInterval
	}
	if c.Clock == nil {
		c.Clock = clockz.RealClock
	}
	return c
}
