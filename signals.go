package concur

import "github.com/zoobzio/capitan"

// Signal constants for scheduler and cache diagnostics.
// Signals follow the pattern: <component>.<event>.
const (
	// Scheduler signals.
	SignalWorkerExited       capitan.Signal = "scheduler.worker.exited"
	SignalWorkerPanic        capitan.Signal = "scheduler.worker.panic"
	SignalWorkerLockPoisoned capitan.Signal = "scheduler.worker.lock_poisoned"
	SignalSupervisorStale    capitan.Signal = "scheduler.supervisor.stale_task"
	SignalSubmitExhausted    capitan.Signal = "scheduler.submit.exhausted"
	SignalShutdownComplete   capitan.Signal = "scheduler.shutdown.complete"

	// Cache signals.
	SignalCacheGCSwept        capitan.Signal = "cache.gc.swept"
	SignalCacheBackingStoreIO capitan.Signal = "cache.backing_store.io_error"
	SignalCacheLockPoisoned   capitan.Signal = "cache.lock_poisoned"
	SignalCacheRecomputeError capitan.Signal = "cache.recompute.error"
)

// Common field keys using capitan primitive types.
var (
	FieldTimestamp = capitan.NewFloat64Key("timestamp")
	FieldError     = capitan.NewStringKey("error")

	// Scheduler fields.
	FieldWorkerID      = capitan.NewIntKey("worker_id")
	FieldTaskID        = capitan.NewIntKey("task_id")
	FieldQueuePosition = capitan.NewIntKey("queue_position")
	FieldAge           = capitan.NewFloat64Key("age_seconds")
	FieldTimeoutSecs   = capitan.NewFloat64Key("timeout_seconds")
	FieldStolen        = capitan.NewStringKey("stolen")
	FieldNumWorkers    = capitan.NewIntKey("num_workers")

	// Cache fields.
	FieldCacheKey     = capitan.NewStringKey("key")
	FieldCacheSize    = capitan.NewIntKey("size")
	FieldRemovedCount = capitan.NewIntKey("removed_count")
)
