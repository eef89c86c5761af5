package concur

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// goYield yields the current goroutine to the scheduler, standing in for
// the OS thread yield the algorithm this was ported from uses between
// unsuccessful submission probes.
func goYield() { runtime.Gosched() }

// maxSubmitRetries bounds how many non-blocking passes over the worker
// queues Submit makes before giving up with ErrSubmissionExhausted.
const maxSubmitRetries = 3

// Scheduler accepts fire-and-forget tasks and executes them across a fixed
// pool of worker goroutines, each with its own queue. Tasks are
// load-balanced on submission, idle workers steal from busy peers, and a
// supervisor goroutine flags tasks that have sat too long unexecuted.
//
// The zero value is not usable; construct with NewScheduler.
type Scheduler struct {
	config SchedulerConfig
	state  *schedulerState
	obs    *schedulerObservability

	started bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewScheduler builds a Scheduler from config, applying defaults to any
// zero-valued fields. Workers and the supervisor are not started until
// Start is called.
func NewScheduler(config SchedulerConfig) *Scheduler {
	config = config.normalize()
	return &Scheduler{
		config: config,
		state:  newSchedulerState(config.NumWorkers, config.Clock),
		obs:    newSchedulerObservability(),
	}
}

// Start launches the worker goroutines and, if StaleTaskTimeout > 0, the
// supervisor goroutine. Calling Start twice is undefined; Scheduler does
// not guard against it, matching the contract it was ported from.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	for w := 0; w < s.config.NumWorkers; w++ {
		s.wg.Add(1)
		go func(w int) {
			defer s.wg.Done()
			s.runWorker(w)
		}(w)
	}

	if s.config.StaleTaskTimeout > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSupervisor()
		}()
	}
}

// Submit assigns a fresh task id, picks a target queue by the load-balancing
// algorithm below, enqueues the task, and wakes one worker. It returns
// ErrShuttingDown once shutdown has begun, and ErrSubmissionExhausted if no
// queue could be acquired non-blockingly within the retry budget.
//
// Load balancing: make one non-blocking pass over every worker queue,
// keeping the shortest one seen (ties go to the first found). If no queue
// could be acquired non-blockingly, yield and retry, up to maxSubmitRetries
// times; once the budget is exhausted, Submit fails with
// ErrSubmissionExhausted rather than blocking indefinitely under
// pathological contention.
func (s *Scheduler) Submit(task Task) (uint64, error) {
	if s.state.shutdown.Load() {
		return 0, ErrShuttingDown
	}

	ctx, span := s.obs.tracer.StartSpan(context.Background(), SpanSubmit)
	defer span.Finish()

	id := s.state.nextTaskID()
	st := scheduledTask{
		fn: task,
		metadata: taskMetadata{
			id:          id,
			submittedAt: s.config.Clock.Now(),
		},
	}

	target, err := s.pickTargetQueue(ctx)
	if err != nil {
		return 0, err
	}

	slot := s.state.slots[target]
	if !slot.tryWithLock(func() { slot.queue.pushBack(st) }) {
		// Lost a race against the probe; fall back to blocking rather than
		// fail a submission we already committed to.
		slot.withLock(func() { slot.queue.pushBack(st) })
	}
	slot.cond.Signal()

	s.obs.metrics.Counter(MetricTasksSubmitted).Inc()
	span.SetTag(TagTaskID, fmt.Sprintf("%d", id))
	span.SetTag(TagWorkerID, fmt.Sprintf("%d", target))

	return id, nil
}

// pickTargetQueue runs the non-blocking probe-and-retry algorithm and
// reports which worker queue Submit should push to. Once maxSubmitRetries
// non-blocking passes all fail to acquire any queue, it gives up and
// returns ErrSubmissionExhausted rather than blocking indefinitely.
func (s *Scheduler) pickTargetQueue(ctx context.Context) (target int, err error) {
	for attempt := 0; attempt < maxSubmitRetries; attempt++ {
		best, ok := s.probeQueues()
		if ok {
			return best, nil
		}

		s.obs.metrics.Counter(MetricSubmitRetries).Inc()
		capitan.Warn(ctx, SignalSubmitExhausted,
			FieldNumWorkers.Field(len(s.state.slots)),
		)
		goYield()
	}
	return 0, ErrSubmissionExhausted
}

// probeQueues makes one non-blocking pass over every worker queue, returning
// the shortest one successfully acquired. ok is false if none could be
// acquired non-blockingly.
func (s *Scheduler) probeQueues() (best int, ok bool) {
	minLen := -1
	for i, slot := range s.state.slots {
		n := -1
		acquired := slot.tryWithLock(func() { n = slot.queue.len() })
		if !acquired {
			continue
		}

		if n == 0 {
			return i, true
		}
		if minLen == -1 || n < minLen {
			minLen = n
			best = i
			ok = true
		}
	}
	return best, ok
}

// SubmitPoisonPill pushes one poison-pill task into every worker queue and
// wakes each worker. A worker that consumes a poison pill exits its loop.
func (s *Scheduler) SubmitPoisonPill() {
	for _, slot := range s.state.slots {
		slot.withLock(func() { slot.queue.pushBack(newPoisonPill(s.config.Clock)) })
		slot.cond.Signal()
	}
}

// Shutdown sets the shutdown flag, wakes every worker so it can observe it,
// submits poison pills, and waits for every worker and the supervisor to
// exit. Any tasks still queued when poison pills are consumed are not
// executed; this is the defined drain behavior.
func (s *Scheduler) Shutdown() {
	s.state.shutdown.Store(true)
	for _, slot := range s.state.slots {
		slot.mu.Lock()
		slot.cond.Broadcast()
		slot.mu.Unlock()
	}

	s.SubmitPoisonPill()
	s.wg.Wait()

	capitan.Info(context.Background(), SignalShutdownComplete,
		FieldNumWorkers.Field(len(s.state.slots)),
	)
	s.obs.close()
}

// Metrics returns the metrics registry backing this scheduler.
func (s *Scheduler) Metrics() *metricz.Registry { return s.obs.metrics }

// Tracer returns the tracer backing this scheduler.
func (s *Scheduler) Tracer() *tracez.Tracer { return s.obs.tracer }

// OnWorkerExit registers a handler invoked whenever a worker goroutine
// exits its loop.
func (s *Scheduler) OnWorkerExit(handler func(context.Context, WorkerExitEvent) error) error {
	_, err := s.obs.workerExit.Hook(EventWorkerExit, handler)
	return err
}

// OnStaleTask registers a handler invoked whenever the supervisor finds a
// task that has been queued longer than the configured timeout.
func (s *Scheduler) OnStaleTask(handler func(context.Context, StaleTaskEvent) error) error {
	_, err := s.obs.staleTask.Hook(EventStaleTask, handler)
	return err
}

// OnTaskPanic registers a handler invoked whenever a task body panics. The
// worker that ran the task survives and continues its loop.
func (s *Scheduler) OnTaskPanic(handler func(context.Context, TaskPanicEvent) error) error {
	_, err := s.obs.taskPanic.Hook(EventTaskPanic, handler)
	return err
}
