package pace

import "time"

// queued is one pending task with its admission metadata.
type queued struct {
	run      Task
	priority bool
	at       time.Time
}

// taskQueue orders pending tasks: all priority tasks first (in insertion
// order), then all normal tasks (in insertion order).
//
// Two cursor-indexed slices replace the classic head/tail/priorityTail
// linked chain; merging at pop time yields the same total order with no
// pointer splicing. Not safe for concurrent use on its own; the owning
// limiter serializes access.
type taskQueue struct {
	prio   []queued
	normal []queued
	pi, ni int // pop cursors into prio / normal
}

func (q *taskQueue) push(item queued) {
	if item.priority {
		q.prio = append(q.prio, item)
		return
	}
	q.normal = append(q.normal, item)
}

func (q *taskQueue) pop() (queued, bool) {
	if q.pi < len(q.prio) {
		item := q.prio[q.pi]
		q.prio[q.pi] = queued{}
		q.pi++
		if q.pi == len(q.prio) {
			q.prio = q.prio[:0]
			q.pi = 0
		}
		return item, true
	}
	if q.ni < len(q.normal) {
		item := q.normal[q.ni]
		q.normal[q.ni] = queued{}
		q.ni++
		if q.ni == len(q.normal) {
			q.normal = q.normal[:0]
			q.ni = 0
		}
		return item, true
	}
	return queued{}, false
}

func (q *taskQueue) len() int {
	return (len(q.prio) - q.pi) + (len(q.normal) - q.ni)
}

func (q *taskQueue) priorityLen() int {
	return len(q.prio) - q.pi
}

// release drops the backing arrays so a drained queue does not retain the
// chain of executed tasks. The next push starts fresh allocations.
func (q *taskQueue) release() {
	q.prio = nil
	q.normal = nil
	q.pi = 0
	q.ni = 0
}
