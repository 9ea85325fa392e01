package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/FreelineGuide/ExamBulldozer/internal/batch"
)

// job is one planned batch with its fully rendered prompt.
type job struct {
	batch  batch.Batch
	prompt string
}

type handler func(ctx context.Context, j job)

// dispatchQueue feeds batches to a fixed set of workers. The channel is
// unbuffered so that a cancelled run stops handing out batches at once.
type dispatchQueue struct {
	handle  handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type queueOption func(*dispatchQueue)

func withWorkers(n int) queueOption {
	return func(q *dispatchQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func withProcessTimeout(d time.Duration) queueOption {
	return func(q *dispatchQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func newDispatchQueue(ctx context.Context, handle handler, logger *slog.Logger, opts ...queueOption) *dispatchQueue {
	q := &dispatchQueue{
		handle:  handle,
		logger:  logger,
		workers: 1,
		timeout: DefaultRequestTimeout,
		ch:      make(chan job),
	}
	for _, o := range opts {
		o(q)
	}
	q.start(ctx)
	return q
}

func (q *dispatchQueue) start(ctx context.Context) {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				for j := range q.ch {
					callCtx, cancel := context.WithTimeout(ctx, q.timeout)
					q.handle(callCtx, j)
					cancel()
				}
				q.logger.Debug("pipeline.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// enqueue blocks until a worker takes j or ctx is done.
func (q *dispatchQueue) enqueue(ctx context.Context, j job) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return context.Canceled
	}
	// a done context wins even when a worker is idle
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- j:
		return nil
	}
}

// shutdown stops intake and waits for in-flight batches.
func (q *dispatchQueue) shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}
