package orchestrator

import (
	"fmt"
	"sort"
	"sync"
)

// taskQueue is a priority-ordered in-memory queue of pending tasks. Failed
// tasks are never re-enqueued by the queue itself; the decision engine
// re-proposes work when its preconditions still hold.
type taskQueue struct {
	mu    sync.Mutex
	tasks []*Task
	ids   IDGenerator
	clock Clock
	seq   uint64
	order map[string]uint64
}

func newTaskQueue(ids IDGenerator, clock Clock) *taskQueue {
	return &taskQueue{
		ids:   ids,
		clock: clock,
		order: make(map[string]uint64),
	}
}

// Enqueue materializes a TaskDef into a pending Task with a unique id.
func (q *taskQueue) Enqueue(def TaskDef) (*Task, error) {
	id, err := q.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}
	task := &Task{
		ID:              id,
		Type:            def.Type,
		Priority:        def.Priority,
		Status:          StatusPending,
		Title:           def.Title,
		Description:     def.Description,
		EstimatedImpact: def.EstimatedImpact,
		Input:           def.Input,
		CreatedAt:       q.clock.Now(),
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.order[task.ID] = q.seq
	q.tasks = append(q.tasks, task)
	q.sortLocked()
	return task, nil
}

// Dequeue pops the highest-priority pending task, FIFO within a priority.
// It returns nil when the queue is empty.
func (q *taskQueue) Dequeue() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	delete(q.order, task.ID)
	return task
}

// HasType reports whether a pending task of the given type is queued.
func (q *taskQueue) HasType(t TaskType) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, task := range q.tasks {
		if task.Type == t {
			return true
		}
	}
	return false
}

// Len returns the number of pending tasks.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Snapshot returns copies of the queued tasks in dispatch order.
func (q *taskQueue) Snapshot() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Task, len(q.tasks))
	for i, task := range q.tasks {
		out[i] = *task
	}
	return out
}

func (q *taskQueue) sortLocked() {
	sort.SliceStable(q.tasks, func(i, j int) bool {
		ri, rj := q.tasks[i].Priority.rank(), q.tasks[j].Priority.rank()
		if ri != rj {
			return ri < rj
		}
		return q.order[q.tasks[i].ID] < q.order[q.tasks[j].ID]
	})
}
