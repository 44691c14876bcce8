package email

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/observability"
)

const sendTimeout = 30 * time.Second

// Queue delivers messages asynchronously with a fixed pool of workers.
// Enqueue never blocks; when the buffer is full the message is dropped.
type Queue struct {
	mailer  Mailer
	jobs    chan Message
	logger  *zap.Logger
	metrics observability.MetricsRegistry

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewQueue starts workers goroutines draining a buffer of size messages.
func NewQueue(m Mailer, workers, size int, logger *zap.Logger, metrics observability.MetricsRegistry) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	q := &Queue{mailer: m, jobs: make(chan Message, size), logger: logger, metrics: metrics}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

func (q *Queue) work() {
	defer q.wg.Done()
	for msg := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := q.mailer.Send(ctx, msg)
		cancel()
		if err != nil {
			q.metrics.IncrementNotifications("email", "failed")
			q.logger.Warn("email delivery failed", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
			continue
		}
		q.metrics.IncrementNotifications("email", "sent")
	}
}

// Enqueue schedules msg for delivery and reports whether it was accepted.
func (q *Queue) Enqueue(msg Message) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- msg:
		return true
	default:
		q.metrics.IncrementNotifications("email", "dropped")
		q.logger.Warn("email queue full, dropping message", zap.String("to", msg.To))
		return false
	}
}

// Close stops accepting messages and waits for queued ones to be sent or
// for ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	})
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
