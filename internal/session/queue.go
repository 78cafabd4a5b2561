package session

import (
	"log/slog"
	"sync"
	"time"
)

const defaultQueueSize = 64

// auditQueue serializes one session's audit side-effects (replay rows,
// command-record uploads) on a single goroutine. FIFO execution gives the
// ordering guarantee the transcript needs: input before output, command N
// before command N+1. Drain is the close barrier: teardown waits for
// outstanding writes before the replay file is finalized.
type auditQueue struct {
	mu     sync.Mutex
	closed bool
	tasks  chan func()
	done   chan struct{}
	log    *slog.Logger
}

func newAuditQueue(size int, log *slog.Logger) *auditQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	q := &auditQueue{
		tasks: make(chan func(), size),
		done:  make(chan struct{}),
		log:   log,
	}
	go q.run()
	return q
}

func (q *auditQueue) run() {
	for fn := range q.tasks {
		fn()
	}
	close(q.done)
}

// Enqueue schedules fn after all previously enqueued work. Blocks when the
// buffer is full rather than reorder or drop audit writes. Returns false
// if the queue is already draining.
func (q *auditQueue) Enqueue(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.log.Warn("audit task dropped: session already closing")
		return false
	}
	q.tasks <- fn
	return true
}

// Drain stops accepting work and waits for the backlog to finish, up to
// timeout. Idempotent.
func (q *auditQueue) Drain(timeout time.Duration) {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
	case <-time.After(timeout):
		q.log.Warn("audit queue drain timed out", "timeout", timeout)
	}
}
