package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher errors
var (
	ErrQueueFull    = errors.New("request queue full - server overloaded")
	ErrQueueTimeout = errors.New("request timed out waiting in queue")
	ErrShuttingDown = errors.New("server is shutting down")
)

type task struct {
	ctx        context.Context
	query      string
	userID     int64
	enqueuedAt time.Time
	resultCh   chan taskResult
}

type taskResult struct {
	result *Result
	err    error
}

// Dispatcher bounds concurrent query processing with a fixed worker pool
// and a buffered queue. A full queue rejects immediately so the caller
// can surface backpressure instead of piling up goroutines.
type Dispatcher struct {
	ctrl         *Controller
	queue        chan *task
	workers      int
	queueTimeout time.Duration

	mu         sync.Mutex
	running    bool
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// NewDispatcher creates a dispatcher for the controller. Non-positive
// sizes fall back to modest defaults.
func NewDispatcher(ctrl *Controller, workers, maxQueued int, queueTimeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 8
	}
	if maxQueued <= 0 {
		maxQueued = 256
	}
	if queueTimeout <= 0 {
		queueTimeout = 60 * time.Second
	}
	return &Dispatcher{
		ctrl:         ctrl,
		queue:        make(chan *task, maxQueued),
		workers:      workers,
		queueTimeout: queueTimeout,
		shutdownCh:   make(chan struct{}),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	slog.Info("Dispatcher started", "workers", d.workers, "max_queued", cap(d.queue))
}

// Stop drains the pool. In-flight work finishes; queued work is
// abandoned with ErrShuttingDown delivered to its waiters and its
// queue-depth accounting released.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.shutdownCh)
	d.wg.Wait()

	for {
		select {
		case t := <-d.queue:
			if m := d.ctrl.metrics; m != nil {
				m.QueueDepth.Dec()
			}
			t.resultCh <- taskResult{err: ErrShuttingDown}
		default:
			slog.Info("Dispatcher stopped")
			return
		}
	}
}

// Submit enqueues a query and blocks until a worker has processed it,
// the context is cancelled, or the queue timeout elapses.
func (d *Dispatcher) Submit(ctx context.Context, query string, userID int64) (*Result, error) {
	t := &task{
		ctx:        ctx,
		query:      query,
		userID:     userID,
		enqueuedAt: time.Now(),
		resultCh:   make(chan taskResult, 1),
	}

	select {
	case d.queue <- t:
		if m := d.ctrl.metrics; m != nil {
			m.QueueDepth.Inc()
		}
	case <-d.shutdownCh:
		return nil, ErrShuttingDown
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		slog.Warn("Query rejected, queue full", "queued", len(d.queue))
		return nil, ErrQueueFull
	}

	select {
	case res := <-t.resultCh:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.shutdownCh:
		return nil, ErrShuttingDown
	case <-time.After(d.queueTimeout):
		return nil, ErrQueueTimeout
	}
}

// QueueDepth reports how many queries are waiting for a worker.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		// Shutdown takes priority over queued work; whatever is left in
		// the queue is handed back by Stop.
		select {
		case <-d.shutdownCh:
			return
		default:
		}

		select {
		case <-d.shutdownCh:
			return
		case t := <-d.queue:
			if m := d.ctrl.metrics; m != nil {
				m.QueueDepth.Dec()
			}
			if t.ctx.Err() != nil {
				t.resultCh <- taskResult{err: t.ctx.Err()}
				continue
			}
			wait := time.Since(t.enqueuedAt)
			if wait > time.Second {
				slog.Debug("Query waited in queue", "wait", wait)
			}
			result, err := d.ctrl.ProcessQuery(t.ctx, t.query, t.userID)
			t.resultCh <- taskResult{result: result, err: err}
		}
	}
}
