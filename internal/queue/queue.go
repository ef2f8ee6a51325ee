// Package queue implements the bounded Run Queue and fixed worker pool of
// spec.md §4.5: RunRequests are enqueued non-blocking, a queue_full error is
// surfaced on overflow, and a fixed pool of workers drains the queue FIFO
// with no ordering guarantee across Scripts.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/scriptyard/scriptyard/internal/logger"

	"github.com/scriptyard/scriptyard/internal/models"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = errors.New("queue_full")

// RunRequest is one unit of work handed to a worker.
type RunRequest struct {
	ScriptID    int64
	TriggerID   *int64
	TriggeredBy models.TriggeredBy
}

// Handler executes one RunRequest. Implemented by internal/engine.
type Handler func(ctx context.Context, req RunRequest)

// Queue is a bounded channel-based queue feeding a fixed-size worker pool.
type Queue struct {
	ch      chan RunRequest
	handler Handler
	log     logger.Logger

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	depthMu  sync.Mutex
	depth    int

	onRejected func()
}

// Option customizes a new Queue.
type Option func(*Queue)

// WithRejectedHook calls fn every time Enqueue returns ErrQueueFull, for
// metrics reporting.
func WithRejectedHook(fn func()) Option {
	return func(q *Queue) { q.onRejected = fn }
}

// New creates a Queue with the given capacity and worker count and starts
// the workers; there is no separate Start step.
func New(capacity, workers int, handler Handler, log logger.Logger, opts ...Option) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	if workers <= 0 {
		workers = 4
	}
	q := &Queue{
		ch:      make(chan RunRequest, capacity),
		handler: handler,
		log:     log,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.startWorkers(workers)
	return q
}

func (q *Queue) startWorkers(workers int) {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-q.ch:
			if !ok {
				return
			}
			q.decDepth()
			q.handler(ctx, req)
		}
	}
}

// Enqueue offers req to the queue without blocking. Returns ErrQueueFull if
// the queue is at capacity.
func (q *Queue) Enqueue(req RunRequest) error {
	select {
	case q.ch <- req:
		q.incDepth()
		return nil
	default:
		if q.onRejected != nil {
			q.onRejected()
		}
		return ErrQueueFull
	}
}

func (q *Queue) incDepth() {
	q.depthMu.Lock()
	q.depth++
	q.depthMu.Unlock()
}

func (q *Queue) decDepth() {
	q.depthMu.Lock()
	q.depth--
	q.depthMu.Unlock()
}

// Depth returns the current number of queued (not yet claimed) requests,
// for metrics.
func (q *Queue) Depth() int {
	q.depthMu.Lock()
	defer q.depthMu.Unlock()
	return q.depth
}

// Shutdown stops accepting new work signals to workers to exit and waits
// for in-flight handlers to return.
func (q *Queue) Shutdown() {
	q.cancel()
	close(q.ch)
	q.wg.Wait()
}
