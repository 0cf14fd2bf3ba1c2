// Package workq provides a cooperative deferred-work queue. Components that must
// notify or call back into one another schedule closures here instead of making
// nested reentrant calls, and the host drains the queue between logical
// operations. Draining synchronously runs everything queued, including work
// scheduled by the closures being run, which keeps test scenarios deterministic.
package workq

import (
	"sync"

	"github.com/disjukr/memquota/chunked"
)

// Queue is a FIFO queue of deferred closures. The zero value is ready to use.
// Queue is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	pending chunked.List[func()]
}

// Schedule enqueues fn to run on a later call to Drain. fn must not be nil.
func (q *Queue) Schedule(fn func()) {
	if fn == nil {
		panic("scheduled a nil closure")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending.PushBack(fn)
}

// Drain runs queued closures until none remain. Closures run outside the queue
// lock, so they are free to schedule further work; that work runs before Drain
// returns.
func (q *Queue) Drain() {
	for {
		q.mu.Lock()
		fn, ok := q.pending.PopFront()
		q.mu.Unlock()
		if !ok {
			return
		}
		fn()
	}
}

// Len returns the number of closures currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}
