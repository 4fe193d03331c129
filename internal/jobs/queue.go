package jobs

import "sync"

// queue is a FIFO of pending jobs drained by a fixed number of workers.
type queue struct {
	name    string
	workers int

	mu      sync.Mutex
	pending []*Job
	ready   chan struct{}
}

func newQueue(name string, workers int) *queue {
	return &queue{name: name, workers: workers, ready: make(chan struct{}, 1)}
}

func (q *queue) push(j *Job) {
	q.mu.Lock()
	q.pending = append(q.pending, j)
	q.mu.Unlock()
	q.signal()
}

// pop takes the oldest job. If more remain another idle worker is woken.
func (q *queue) pop() (*Job, bool) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	j := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	more := len(q.pending) > 0
	q.mu.Unlock()
	if more {
		q.signal()
	}
	return j, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
