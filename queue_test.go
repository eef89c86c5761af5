package concur

import "testing"

func TestWorkerQueueFIFOFromFront(t *testing.T) {
	q := newWorkerQueue()
	q.pushBack(scheduledTask{metadata: taskMetadata{id: 1}})
	q.pushBack(scheduledTask{metadata: taskMetadata{id: 2}})
	q.pushBack(scheduledTask{metadata: taskMetadata{id: 3}})

	if q.len() != 3 {
		t.Fatalf("expected len 3, got %d", q.len())
	}

	first, ok := q.popFront()
	if !ok || first.metadata.id != 1 {
		t.Fatalf("expected front task id 1, got %+v ok=%v", first, ok)
	}
}

func TestWorkerQueueStealFromBack(t *testing.T) {
	q := newWorkerQueue()
	q.pushBack(scheduledTask{metadata: taskMetadata{id: 1}})
	q.pushBack(scheduledTask{metadata: taskMetadata{id: 2}})

	stolen, ok := q.popBack()
	if !ok || stolen.metadata.id != 2 {
		t.Fatalf("expected to steal task id 2, got %+v ok=%v", stolen, ok)
	}
	if q.len() != 1 {
		t.Fatalf("expected len 1 after steal, got %d", q.len())
	}
}

func TestWorkerQueueEmptyPops(t *testing.T) {
	q := newWorkerQueue()
	if _, ok := q.popFront(); ok {
		t.Fatal("expected popFront on empty queue to report false")
	}
	if _, ok := q.popBack(); ok {
		t.Fatal("expected popBack on empty queue to report false")
	}
}
