package rotation

import "sync"

// JobQueue is the rotation thread's job queue: a mutex-protected FIFO
// deduplicated on (kind, session_id), with a non-blocking wake signal
// standing in for the source's event-fd write that tolerates
// EAGAIN|EWOULDBLOCK (spec.md §4.6 enqueue discipline — timer handlers
// must never block on this queue).
type JobQueue struct {
	mu      sync.Mutex
	list    []Job
	pending map[jobKey]struct{}
	notify  chan struct{}
}

// NewJobQueue creates an empty job queue.
func NewJobQueue() *JobQueue {
	return &JobQueue{
		pending: make(map[jobKey]struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// Notify returns the channel that receives a wakeup signal whenever a
// job is enqueued.
func (q *JobQueue) Notify() <-chan struct{} {
	return q.notify
}

func (q *JobQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Enqueue appends job unless an equivalent (kind, session_id) job is
// already queued, in which case it is silently dropped. Never blocks.
func (q *JobQueue) Enqueue(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := job.key()
	if _, exists := q.pending[k]; exists {
		return
	}
	q.pending[k] = struct{}{}
	q.list = append(q.list, job)
	q.wake()
}

// Drain removes and returns every job currently queued, in FIFO order,
// clearing the dedup set so the same (kind, session_id) pair can be
// enqueued again once this batch is handled.
func (q *JobQueue) Drain() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.list) == 0 {
		return nil
	}
	drained := q.list
	q.list = nil
	q.pending = make(map[jobKey]struct{})
	return drained
}

// Len reports the number of jobs currently queued.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.list)
}
