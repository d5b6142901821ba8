package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"

	"github.com/sethvargo/go-retry"
)

var ErrQueueFull = errors.New("notification queue full")

// AsyncSink queues messages and delivers them to next from a worker pool,
// retrying failed deliveries with exponential backoff.
type AsyncSink struct {
	next       Sink
	jobs       chan domain.Message
	workers    int
	maxRetries uint64
	backoff    time.Duration
	timeout    time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncSink(next Sink, workers, queueSize int, maxRetries uint64) *AsyncSink {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}
	return &AsyncSink{
		next:       next,
		jobs:       make(chan domain.Message, queueSize),
		workers:    workers,
		maxRetries: maxRetries,
		backoff:    time.Second,
		timeout:    30 * time.Second,
	}
}

// Start launches the workers. They run until Close drains the queue.
func (a *AsyncSink) Start() {
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.worker(i)
	}
}

func (a *AsyncSink) worker(id int) {
	defer a.wg.Done()
	logger.Debug("Notification worker started", "worker", id)
	for msg := range a.jobs {
		a.deliver(msg)
	}
	logger.Debug("Notification worker stopped", "worker", id)
}

func (a *AsyncSink) deliver(msg domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	attempt := 0
	b := retry.WithMaxRetries(a.maxRetries, retry.NewExponential(a.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := a.next.Send(ctx, msg); err != nil {
			logger.Warn("Notification delivery failed", "bookingID", msg.BookingID, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		logger.Error("Notification dropped", "bookingID", msg.BookingID, "recipientID", msg.RecipientID, "attempts", attempt, "error", err)
	}
}

// Send enqueues msg without blocking.
func (a *AsyncSink) Send(ctx context.Context, msg domain.Message) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrQueueFull
	}
	select {
	case a.jobs <- msg:
		return nil
	default:
		logger.Warn("Notification queue full", "bookingID", msg.BookingID, "recipientID", msg.RecipientID)
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (a *AsyncSink) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
