package display

import (
	"context"
	"sync"
	"time"
)

const DefaultQueueSize = 64

// Queue hands work to the goroutine that owns presentation state. Posted
// functions run on that goroutine, one at a time, in post order.
type Queue struct {
	ch        chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		ch:   make(chan func(), size),
		done: make(chan struct{}),
	}
}

// Post schedules fn. It blocks while the queue is full and returns false if
// the queue has been closed.
func (q *Queue) Post(fn func()) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.ch <- fn:
		return true
	case <-q.done:
		return false
	}
}

// Run executes posted functions until ctx ends or Close is called. Work
// still queued at that point is executed before Run returns.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case fn := <-q.ch:
			fn()
		case <-ctx.Done():
			q.Close()
			q.flush()
			return
		case <-q.done:
			q.flush()
			return
		}
	}
}

func (q *Queue) flush() {
	for {
		select {
		case fn := <-q.ch:
			fn()
		default:
			return
		}
	}
}

// Close stops accepting work.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Sink returns a Sink that forwards updates to target on the queue's
// goroutine.
func (q *Queue) Sink(target Sink) Sink {
	return queuedSink{q: q, target: target}
}

type queuedSink struct {
	q      *Queue
	target Sink
}

func (s queuedSink) Update(elapsed time.Duration, value float64) {
	s.q.Post(func() { s.target.Update(elapsed, value) })
}
