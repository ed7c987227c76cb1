package persist

import (
	"container/heap"
	"time"
)

// scheduledTask is a callback waiting in the Scheduler.
type scheduledTask struct {
	// at is the earliest scheduler time the task may run at
	at time.Time

	// seq breaks ties between tasks due at the same time, oldest first
	seq uint64

	fn func(now time.Time)

	cancelled bool

	// slot is the heap position, -1 once the task left the queue
	slot int
}

// taskHeap orders tasks by due time, then submission.
type taskHeap []*scheduledTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].slot = i
	h[j].slot = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*scheduledTask)
	t.slot = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old) - 1
	t := old[n]
	old[n] = nil
	t.slot = -1
	*h = old[:n]
	return t
}

// taskQueue holds the pending tasks of one Scheduler. It is only touched
// from the simulation tick and needs no locking.
type taskQueue struct {
	tasks taskHeap
	seq   uint64
}

func newTaskQueue() *taskQueue {
	return &taskQueue{tasks: make(taskHeap, 0, 16)}
}

// Push queues a task.
func (q *taskQueue) Push(t *scheduledTask) {
	q.seq++
	t.seq = q.seq
	heap.Push(&q.tasks, t)
}

// PopDue removes and returns every task due at or before now, in run order.
func (q *taskQueue) PopDue(now time.Time) []*scheduledTask {
	var due []*scheduledTask
	for len(q.tasks) > 0 && !q.tasks[0].at.After(now) {
		due = append(due, heap.Pop(&q.tasks).(*scheduledTask))
	}
	return due
}

// Remove cancels a task and takes it out of the queue if it is still there.
func (q *taskQueue) Remove(t *scheduledTask) {
	t.cancelled = true
	if t.slot < 0 || t.slot >= len(q.tasks) || q.tasks[t.slot] != t {
		return
	}
	heap.Remove(&q.tasks, t.slot)
}

// Len returns the number of queued tasks.
func (q *taskQueue) Len() int {
	return len(q.tasks)
}

// Clear cancels and drops every queued task.
func (q *taskQueue) Clear() {
	for i, t := range q.tasks {
		t.cancelled = true
		t.slot = -1
		q.tasks[i] = nil
	}
	q.tasks = q.tasks[:0]
}
