package concur

import (
	"context"
	"fmt"
	"runtime"

	"github.com/zoobzio/capitan"
)

// runWorker is the per-worker goroutine body. It owns slot w exclusively for
// popping from the front; submitters push to the back and stealers pop from
// the back of any slot, including this one.
func (s *Scheduler) runWorker(w int) {
	active := s.state.activeWorkers.Add(1)
	s.obs.metrics.Gauge(MetricActiveWorkers).Set(float64(active))

	defer func() {
		if r := recover(); r != nil {
			s.emitWorkerExit(w, fmt.Sprintf("panic escaped worker loop: %v", r))
		}
	}()

	for {
		if s.state.shutdown.Load() {
			s.emitWorkerExit(w, "shutdown")
			return
		}

		task, waited, poisoned := s.waitForTask(w)
		if poisoned {
			s.emitWorkerExit(w, "lock poisoned")
			return
		}
		if task.fn == nil && s.state.shutdown.Load() {
			// waitForTask observed shutdown before any task arrived.
			s.emitWorkerExit(w, "shutdown")
			return
		}
		if task.isPoisonPill() {
			s.emitWorkerExit(w, "poison pill")
			return
		}

		s.executeTask(w, task, false)

		stole := false
		if waited && s.config.EnableWorkStealing {
			if stolen, ok := s.trySteal(w); ok {
				s.executeTask(w, stolen, true)
				stole = true
			}
		}
		if waited && !stole {
			runtime.Gosched()
		}
	}
}

// waitForTask blocks on slot w's condition variable until a task is
// available or shutdown is observed. waited reports whether the caller had
// to block at all (queue was already non-empty, no stealing is attempted).
func (s *Scheduler) waitForTask(w int) (task scheduledTask, waited, poisoned bool) {
	slot := s.state.slots[w]

	slot.withLock(func() {
		for slot.queue.len() == 0 {
			if s.state.shutdown.Load() {
				return
			}
			waited = true
			slot.cond.Wait()
			if slot.mu.IsPoisoned() {
				poisoned = true
				return
			}
		}
		t, _ := slot.queue.popFront()
		task = t
	})
	return task, waited, poisoned
}

// trySteal attempts a single non-blocking steal in round-robin order
// starting at (w+1) mod N. Poison pills encountered are re-inserted at the
// back of their owning queue rather than stolen.
func (s *Scheduler) trySteal(w int) (scheduledTask, bool) {
	n := len(s.state.slots)
	_, span := s.obs.tracer.StartSpan(context.Background(), SpanSteal)
	span.SetTag(TagWorkerID, fmt.Sprintf("%d", w))
	defer span.Finish()

	for i := 1; i < n; i++ {
		victim := (w + i) % n
		slot := s.state.slots[victim]

		var stolen scheduledTask
		var found bool
		ran := slot.tryWithLock(func() {
			t, ok := slot.queue.popBack()
			if !ok {
				return
			}
			if t.isPoisonPill() {
				slot.queue.pushBack(t)
				return
			}
			stolen, found = t, true
		})
		if !ran || !found {
			continue
		}

		s.obs.metrics.Counter(MetricTasksStolen).Inc()
		span.SetTag(TagStolen, "true")
		return stolen, true
	}
	span.SetTag(TagStolen, "false")
	return scheduledTask{}, false
}

// executeTask runs a task body under panic isolation: a panicking task is
// caught, logged with its id and worker id, and does not propagate. stolen
// records whether this task arrived via work stealing, for tracing only.
func (s *Scheduler) executeTask(w int, t scheduledTask, stolen bool) {
	ctx, span := s.obs.tracer.StartSpan(context.Background(), SpanTaskExecute)
	span.SetTag(TagWorkerID, fmt.Sprintf("%d", w))
	span.SetTag(TagTaskID, fmt.Sprintf("%d", t.metadata.id))
	if stolen {
		span.SetTag(TagStolen, "true")
	}
	defer span.Finish()

	defer func() {
		if r := recover(); r != nil {
			s.obs.metrics.Counter(MetricTasksPanicked).Inc()
			span.SetTag(TagOutcome, "panic")
			recovered := fmt.Sprintf("%v", r)
			capitan.Error(ctx, SignalWorkerPanic,
				FieldWorkerID.Field(w),
				FieldTaskID.Field(intOrMax(t.metadata.id)),
				FieldError.Field(recovered),
			)
			_ = s.obs.taskPanic.Emit(ctx, EventTaskPanic, TaskPanicEvent{
				WorkerID:  w,
				TaskID:    t.metadata.id,
				Recovered: recovered,
			})
			return
		}
		s.obs.metrics.Counter(MetricTasksExecuted).Inc()
		span.SetTag(TagOutcome, "ok")
	}()

	t.fn()
}

func (s *Scheduler) emitWorkerExit(w int, reason string) {
	active := s.state.activeWorkers.Add(-1)
	s.obs.metrics.Gauge(MetricActiveWorkers).Set(float64(active))
	s.obs.metrics.Counter(MetricWorkersExited).Inc()

	capitan.Info(context.Background(), SignalWorkerExited,
		FieldWorkerID.Field(w),
		FieldError.Field(reason),
	)
	_ = s.obs.workerExit.Emit(context.Background(), EventWorkerExit, WorkerExitEvent{
		WorkerID: w,
		Reason:   reason,
	})
}

// intOrMax keeps the poison-pill sentinel's metric/trace representation
// sane on platforms where uint64 overflows int.
func intOrMax(id uint64) int {
	if id == poisonPillID {
		return -1
	}
	return int(id)
}
