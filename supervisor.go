package concur

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// runSupervisor periodically scans every worker queue for tasks that have
// been waiting longer than the configured timeout. It only ever reads: it
// never pops, reorders, or cancels a task, and it always probes queues
// non-blockingly so it never contends with an active worker or stealer.
func (s *Scheduler) runSupervisor() {
	for {
		<-s.config.Clock.After(s.config.SupervisorInterval)

		if s.state.shutdown.Load() {
			return
		}
		s.scanForStaleTasks()
	}
}

func (s *Scheduler) scanForStaleTasks() {
	now := s.config.Clock.Now()

	for workerID, slot := range s.state.slots {
		found := 0
		ran := slot.tryWithLock(func() {
			for pos, t := range slot.queue.tasks {
				age := now.Sub(t.metadata.submittedAt)
				if age > s.config.StaleTaskTimeout {
					found++
					s.reportStaleTask(workerID, pos, t, age)
				}
			}
		})
		if !ran {
			continue
		}

		if found > 0 {
			s.obs.metrics.Counter(MetricStaleTasksFound).Add(float64(found))
		}
	}
}

func (s *Scheduler) reportStaleTask(workerID, position int, t scheduledTask, age time.Duration) {
	ageSeconds := age.Seconds()

	capitan.Warn(context.Background(), SignalSupervisorStale,
		FieldWorkerID.Field(workerID),
		FieldTaskID.Field(intOrMax(t.metadata.id)),
		FieldQueuePosition.Field(position),
		FieldAge.Field(ageSeconds),
		FieldTimeoutSecs.Field(s.config.StaleTaskTimeout.Seconds()),
	)
	_ = s.obs.staleTask.Emit(context.Background(), EventStaleTask, StaleTaskEvent{
		WorkerID: workerID,
		TaskID:   t.metadata.id,
		Age:      ageSeconds,
	})
}
