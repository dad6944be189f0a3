package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// BatchQueue is a bounded in-memory queue of batches. Consumers range over
// Batches until the queue is closed and drained.
type BatchQueue[T any] struct {
	items   chan []T
	maxSize int
	closed  bool
	mu      sync.RWMutex
	logger  *logrus.Logger
}

// NewBatchQueue creates a queue holding at most bufferSize batches
func NewBatchQueue[T any](bufferSize int, logger *logrus.Logger) *BatchQueue[T] {
	if logger == nil {
		logger = logrus.New()
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &BatchQueue[T]{
		items:   make(chan []T, bufferSize),
		maxSize: bufferSize,
		logger:  logger,
	}
}

// Push adds a batch without blocking
func (q *BatchQueue[T]) Push(batch []T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- batch:
		q.logger.WithField("batch_size", len(batch)).Debug("Pushed batch to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// PushWait adds a batch, waiting for room until ctx is done.
func (q *BatchQueue[T]) PushWait(ctx context.Context, batch []T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- batch:
		q.logger.WithField("batch_size", len(batch)).Debug("Pushed batch to queue")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Batches is the consumer side of the queue
func (q *BatchQueue[T]) Batches() <-chan []T {
	return q.items
}

// Close stops the queue and prevents new items from being added. Batches
// already queued are still delivered.
func (q *BatchQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.items)
	return nil
}

// Len returns the current number of batches in the queue
func (q *BatchQueue[T]) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *BatchQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Chunk splits items into consecutive batches of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var batches [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
