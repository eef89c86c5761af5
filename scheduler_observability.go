package concur

import (
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric keys.
const (
	MetricTasksSubmitted  = metricz.Key("scheduler.tasks.submitted.total")
	MetricTasksExecuted   = metricz.Key("scheduler.tasks.executed.total")
	MetricTasksPanicked   = metricz.Key("scheduler.tasks.panicked.total")
	MetricTasksStolen     = metricz.Key("scheduler.tasks.stolen.total")
	MetricSubmitRetries   = metricz.Key("scheduler.submit.retries.total")
	MetricWorkersExited   = metricz.Key("scheduler.workers.exited.total")
	MetricActiveWorkers   = metricz.Key("scheduler.workers.active")
	MetricStaleTasksFound = metricz.Key("scheduler.supervisor.stale_found.total")
)

// Span keys.
const (
	SpanSubmit      = tracez.Key("scheduler.submit")
	SpanTaskExecute = tracez.Key("scheduler.task.execute")
	SpanSteal       = tracez.Key("scheduler.steal")
)

// Span tags.
const (
	TagWorkerID = tracez.Tag("worker_id")
	TagTaskID   = tracez.Tag("task_id")
	TagOutcome  = tracez.Tag("outcome")
	TagStolen   = tracez.Tag("stolen")
)

// WorkerExitEvent is emitted via hooks when a worker goroutine exits its
// loop, whether from a poison pill or a poisoned lock.
type WorkerExitEvent struct {
	WorkerID int
	Reason   string
}

// StaleTaskEvent is emitted via hooks by the supervisor for each task found
// sitting in a queue longer than the configured timeout.
type StaleTaskEvent struct {
	WorkerID int
	TaskID   uint64
	Age      float64
}

// TaskPanicEvent is emitted via hooks whenever a task body panics. The
// worker that ran it survives; this lets a caller observe panic rate
// without scraping diagnostic signals.
type TaskPanicEvent struct {
	WorkerID  int
	TaskID    uint64
	Recovered string
}

// Hook event keys.
const (
	EventWorkerExit hookz.Key = "scheduler.worker.exit"
	EventStaleTask  hookz.Key = "scheduler.supervisor.stale"
	EventTaskPanic  hookz.Key = "scheduler.task.panic"
)

// schedulerObservability bundles the metrics registry, tracer, and hooks for
// a single Scheduler instance, mirroring the ambient stack the rest of this
// package's teacher wires into every connector.
type schedulerObservability struct {
	metrics    *metricz.Registry
	tracer     *tracez.Tracer
	workerExit *hookz.Hooks[WorkerExitEvent]
	staleTask  *hookz.Hooks[StaleTaskEvent]
	taskPanic  *hookz.Hooks[TaskPanicEvent]
}

func newSchedulerObservability() *schedulerObservability {
	metrics := metricz.New()
	metrics.Counter(MetricTasksSubmitted)
	metrics.Counter(MetricTasksExecuted)
	metrics.Counter(MetricTasksPanicked)
	metrics.Counter(MetricTasksStolen)
	metrics.Counter(MetricSubmitRetries)
	metrics.Counter(MetricWorkersExited)
	metrics.Counter(MetricStaleTasksFound)
	metrics.Gauge(MetricActiveWorkers)

	return &schedulerObservability{
		metrics:    metrics,
		tracer:     tracez.New(),
		workerExit: hookz.New[WorkerExitEvent](),
		staleTask:  hookz.New[StaleTaskEvent](),
		taskPanic:  hookz.New[TaskPanicEvent](),
	}
}

func (o *schedulerObservability) close() {
	o.tracer.Close()
	o.workerExit.Close()
	o.staleTask.Close()
	o.taskPanic.Close()
}
