package monitor

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"keytap/keyevent"
	"keytap/log"
)

// Handler receives delivered records on the consumer goroutine. It must not
// call Stop synchronously.
type Handler func(keyevent.Event)

// liveQueues counts dispatcher goroutines; tests use it to assert no leaks.
var liveQueues atomic.Int64

// queue is an unbounded hand-off from the capture thread to one dispatcher
// goroutine, which calls the handler in push order.
type queue struct {
	handler Handler

	mu      sync.Mutex
	pending []keyevent.Event
	closed  bool

	wake      chan struct{}
	done      chan struct{}
	abandoned atomic.Bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func newQueue(h Handler) *queue {
	q := &queue{
		handler: h,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	liveQueues.Add(1)
	go q.dispatch()
	return q
}

// Push appends ev without blocking. After Close, ev is dropped.
func (q *queue) Push(ev keyevent.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.dropped.Add(1)
		return
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) dispatch() {
	defer liveQueues.Add(-1)
	defer close(q.done)

	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for i, ev := range batch {
			if q.abandoned.Load() {
				q.dropped.Add(uint64(len(batch) - i))
				return
			}
			q.deliver(ev)
		}

		if len(batch) > 0 {
			continue
		}
		if closed || q.abandoned.Load() {
			return
		}
		<-q.wake
	}
}

func (q *queue) deliver(ev keyevent.Event) {
	defer func() {
		if r := recover(); r != nil {
			q.dropped.Add(1)
			log.Errorf("key event handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	q.handler(ev)
	q.delivered.Add(1)
}

// discard closes the queue without flushing.
func (q *queue) discard() {
	q.mu.Lock()
	q.closed = true
	q.dropped.Add(uint64(len(q.pending)))
	q.pending = nil
	q.mu.Unlock()
	q.abandoned.Store(true)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close stops intake and waits up to timeout for queued records to be
// delivered. On expiry the queue is abandoned: the records still pending are
// dropped and at most the call already in progress completes. It reports
// whether the flush completed.
func (q *queue) Close(timeout time.Duration) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return !q.abandoned.Load()
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-q.done:
		return true
	case <-timer.C:
		q.abandoned.Store(true)
		q.mu.Lock()
		n := len(q.pending)
		q.pending = nil
		q.mu.Unlock()
		q.dropped.Add(uint64(n))
		log.Warnf("delivery flush timed out, %d record(s) dropped", n)
		return false
	}
}
