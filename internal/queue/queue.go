package queue

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"kvartometr/server/internal/models"
)

var (
	// ErrQueueClosed is returned by Push after Close has been called.
	ErrQueueClosed = errors.New("observation queue is closed")
)

// Batch is one unit of work for the processors: the listings produced by a
// single source page walk, already normalized and carrying identity keys.
type Batch struct {
	Source   string
	City     models.City
	Listings []*models.Listing
}

// Handler consumes a batch. A non-nil error means the batch could not be
// committed and the run should be treated as failed.
type Handler func(*Batch) error

// ObservationQueue decouples the fetch workers from the database writers.
// Pushes block when the buffer is full, which gives the pipeline natural
// backpressure against a slow disk.
type ObservationQueue struct {
	items   chan *Batch
	drained chan struct{}

	mu       sync.RWMutex
	closed   bool
	handlers []Handler

	logger *logrus.Logger
}

// NewObservationQueue creates a queue with the given buffer size.
func NewObservationQueue(size int, logger *logrus.Logger) *ObservationQueue {
	if size <= 0 {
		size = 64
	}
	return &ObservationQueue{
		items:   make(chan *Batch, size),
		drained: make(chan struct{}),
		logger:  logger,
	}
}

// Subscribe registers a handler. Handlers must be registered before Start.
func (q *ObservationQueue) Subscribe(h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, h)
}

// Push enqueues a batch, blocking until buffer space is available.
func (q *ObservationQueue) Push(b *Batch) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	q.items <- b
	return nil
}

// Start launches the consumer goroutines. Each worker drains the channel
// until Close is called and the buffer is empty.
func (q *ObservationQueue) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range q.items {
				q.dispatch(batch)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(q.drained)
	}()
}

func (q *ObservationQueue) dispatch(b *Batch) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, h := range handlers {
		if err := h(b); err != nil {
			q.logger.WithFields(logrus.Fields{
				"source":   b.Source,
				"city":     b.City,
				"listings": len(b.Listings),
			}).WithError(err).Error("Batch handler failed")
		}
	}
}

// Close stops accepting new batches. Already queued batches are still
// delivered; use Wait to block until they are.
func (q *ObservationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
}

// Wait blocks until every queued batch has been handled.
func (q *ObservationQueue) Wait() {
	<-q.drained
}

// Len reports the number of batches currently buffered.
func (q *ObservationQueue) Len() int {
	return len(q.items)
}
