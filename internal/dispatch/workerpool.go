package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ojp-io/ojp/internal/logging"
)

// ErrPoolNotStarted is returned by Submit before Start has been called.
var ErrPoolNotStarted = errors.New("dispatch: worker pool not started")

// ErrPoolShuttingDown is returned by Submit once Stop has been called.
var ErrPoolShuttingDown = errors.New("dispatch: worker pool is shutting down")

// ErrQueueFull is returned by Submit when the task queue has no free
// capacity, the bounded-concurrency backpressure signal.
var ErrQueueFull = errors.New("dispatch: worker pool queue is full")

// task is one queued unit of dispatch work.
type task func(ctx context.Context)

// WorkerPoolConfig configures a bounded WorkerPool. Defaults mirror the
// ojp.thread.pool.size=200 baseline.
type WorkerPoolConfig struct {
	WorkerCount int
	QueueSize   int
	TaskTimeout time.Duration
}

// WorkerPool bounds dispatcher concurrency to a fixed goroutine count
// with a buffered task queue: controlled concurrency, graceful shutdown
// via context cancellation plus WaitGroup drain, and backpressure when
// the queue is full rather than unbounded goroutine growth.
type WorkerPool struct {
	workerCount int
	queue       chan task
	taskTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
}

// NewWorkerPool creates a worker pool with cfg, applying defaults for
// any zero field.
func NewWorkerPool(cfg WorkerPoolConfig) *WorkerPool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 200
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workerCount: cfg.WorkerCount,
		queue:       make(chan task, cfg.QueueSize),
		taskTimeout: cfg.TaskTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the pool's worker goroutines. It may be called once.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started {
		return
	}
	wp.started = true
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop signals every worker to drain its in-flight task and exit,
// waiting up to timeout for them to finish.
func (wp *WorkerPool) Stop(timeout time.Duration) error {
	wp.mu.Lock()
	if !wp.started {
		wp.mu.Unlock()
		return nil
	}
	wp.mu.Unlock()

	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("dispatch: worker pool shutdown timed out")
	}
}

// Submit runs fn on a worker goroutine and blocks until fn returns, then
// returns fn's result, or ctx is canceled first.
func (wp *WorkerPool) Submit(ctx context.Context, fn func(ctx context.Context) (*Response, error)) (*Response, error) {
	wp.mu.RLock()
	started := wp.started
	wp.mu.RUnlock()
	if !started {
		return nil, ErrPoolNotStarted
	}

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)

	t := task(func(taskCtx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				logging.Op().Error().Interface("panic", r).Msg("dispatch worker recovered from panic")
				done <- result{nil, fmt.Errorf("dispatch: task panicked: %v", r)}
			}
		}()
		resp, err := fn(taskCtx)
		done <- result{resp, err}
	})

	select {
	case wp.queue <- t:
	case <-wp.ctx.Done():
		return nil, ErrPoolShuttingDown
	default:
		logging.Op().Warn().Msg("dispatch worker pool queue full, rejecting request")
		return nil, ErrQueueFull
	}

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for {
		select {
		case <-wp.ctx.Done():
			return
		case t := <-wp.queue:
			wp.runTask(t)
		}
	}
}

func (wp *WorkerPool) runTask(t task) {
	ctx, cancel := context.WithTimeout(wp.ctx, wp.taskTimeout)
	defer cancel()
	t(ctx)
}

// Stats reports the pool's current load for metrics.
type Stats struct {
	WorkerCount int
	QueueSize   int
	Queued      int
	Running     bool
}

// Stats returns a snapshot of the pool's load.
func (wp *WorkerPool) Stats() Stats {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return Stats{
		WorkerCount: wp.workerCount,
		QueueSize:   cap(wp.queue),
		Queued:      len(wp.queue),
		Running:     wp.started && wp.ctx.Err() == nil,
	}
}
