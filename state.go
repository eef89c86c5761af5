package concur

import (
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
)

// workerSlot is the per-worker queue plus the condition variable a worker
// waits on when its queue is empty. The mutex also backs the queue itself:
// only the owning worker reads from the front, but any goroutine may push,
// steal from the back, or inspect the length while holding it.
type workerSlot struct {
	mu    poisonableMutex
	cond  *sync.Cond
	queue *workerQueue
}

func newWorkerSlot() *workerSlot {
	s := &workerSlot{queue: newWorkerQueue()}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// withLock runs fn with the slot's mutex held, poisoning the mutex and
// broadcasting to any waiter before letting a panic from fn continue
// unwinding. This is the only way poisonableMutex.Poison is reached in
// production: any goroutine whose task body has already escaped panic
// isolation elsewhere but that panics while it owns a slot (a submitter
// mid-push, a stealer mid-pop, the supervisor mid-scan) leaves the slot
// poisoned rather than silently unlocked over possibly-corrupt queue state.
func (s *workerSlot) withLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.mu.Poison()
			s.cond.Broadcast()
			panic(r)
		}
	}()
	fn()
}

// tryWithLock attempts a non-blocking acquisition of the slot's mutex,
// running fn and reporting true if acquired. Panics from fn poison the
// mutex and broadcast exactly like withLock before continuing to unwind.
func (s *workerSlot) tryWithLock(fn func()) (ran bool) {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.mu.Poison()
			s.cond.Broadcast()
			panic(r)
		}
	}()
	fn()
	return true
}

// schedulerState is the process-wide record shared by reference across all
// scheduler goroutines: the per-worker queues and their wakeup signals, the
// shutdown flag, and the task-id counter. Observability (metrics, tracing,
// hooks) lives on the Scheduler facade, not here.
type schedulerState struct {
	slots         []*workerSlot
	shutdown      atomic.Bool
	taskSeq       atomic.Uint64
	activeWorkers atomic.Int64
	clock         clockz.Clock
}

func newSchedulerState(numWorkers int, clock clockz.Clock) *schedulerState {
	st := &schedulerState{
		slots: make([]*workerSlot, numWorkers),
		clock: clock,
	}
	for i := range st.slots {
		st.slots[i] = newWorkerSlot()
	}
	return st
}

// nextTaskID returns a fresh, monotonically increasing task id using
// wrapping arithmetic; aliasing the poison-pill sentinel is tolerated per
// spec at around 2^64 submissions.
func (s *schedulerState) nextTaskID() uint64 {
	return s.taskSeq.Add(1)
}
