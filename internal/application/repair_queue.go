package application

import (
	"context"
	"log/slog"
	"sync"
)

// RepairFunc processes one queued recording.
type RepairFunc func(ctx context.Context, recordingID string) error

// RepairQueue is a bounded worker pool for push-path container repair.
type RepairQueue struct {
	jobs    chan string
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewRepairQueue builds a queue with the given worker count and buffer capacity.
func NewRepairQueue(workers, capacity int, logger *slog.Logger) *RepairQueue {
	if workers <= 0 {
		workers = 1
	}
	if capacity < workers {
		capacity = workers
	}
	return &RepairQueue{
		jobs:    make(chan string, capacity),
		workers: workers,
		logger:  defaultLogger(logger),
		pending: make(map[string]struct{}),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Close is called.
func (q *RepairQueue) Start(ctx context.Context, process RepairFunc) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			q.run(ctx, worker, process)
		}(i)
	}
}

func (q *RepairQueue) run(ctx context.Context, worker int, process RepairFunc) {
	logger := q.logger.With("service", "RepairQueue", "worker", worker)
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-q.jobs:
			if !ok {
				return
			}
			q.mu.Lock()
			delete(q.pending, id)
			q.mu.Unlock()

			if err := process(ctx, id); err != nil {
				logger.ErrorContext(ctx, "queued repair failed", "recording_id", id, "error", err, "error_kind", ErrorKind(err))
				continue
			}
			logger.InfoContext(ctx, "queued repair finished", "recording_id", id)
		}
	}
}

// Enqueue adds a recording without blocking. It returns false when the queue is full or closed.
// A recording already waiting in the queue is not added twice.
func (q *RepairQueue) Enqueue(recordingID string) bool {
	if q == nil || recordingID == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if _, ok := q.pending[recordingID]; ok {
		return true
	}
	select {
	case q.jobs <- recordingID:
		q.pending[recordingID] = struct{}{}
		return true
	default:
		return false
	}
}

// Close stops accepting work and waits for the workers to drain the queue.
func (q *RepairQueue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
