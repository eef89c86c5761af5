package concur

import (
	"math"
	"time"

	"github.com/zoobzio/clockz"
)

// Task is a one-shot, side-effect-only unit of work submitted to the
// scheduler. It takes no arguments and returns nothing; it may close over
// and mutate whatever state the caller owns, but it must be safe to run on
// any worker goroutine.
type Task func()

// poisonPillID is the reserved task id that marks a poison pill: a sentinel
// task whose sole effect is to cause the consuming worker to exit its loop.
// It aliases a real task id only after on the order of 2^64 submissions,
// which spec.md places out of scope.
const poisonPillID uint64 = math.MaxUint64

// taskMetadata is attached to every task at submission time.
type taskMetadata struct {
	id          uint64
	submittedAt time.Time
}

// scheduledTask pairs a task body with its metadata inside a worker queue.
type scheduledTask struct {
	fn       Task
	metadata taskMetadata
}

func (t scheduledTask) isPoisonPill() bool {
	return t.metadata.id == poisonPillID
}

func newPoisonPill(clock clockz.Clock) scheduledTask {
	return scheduledTask{
		fn: func() {},
		metadata: taskMetadata{
			id:          poisonPillID,
			submittedAt: clock.Now(),
		},
	}
}
