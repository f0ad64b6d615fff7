package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rankboard/rankboard/internal/logging"
)

// MemoryQueue runs jobs off timers in-process. Used in tests and when
// Redis is not configured; scheduled jobs do not survive a restart.
type MemoryQueue struct {
	handler Handler
	log     *logging.Logger

	mu       sync.Mutex
	timers   map[string]*time.Timer
	attempts map[string]int
	stopped  bool
	wg       sync.WaitGroup
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates a queue dispatching to handler.
func NewMemoryQueue(handler Handler, log *logging.Logger) *MemoryQueue {
	return &MemoryQueue{
		handler:  handler,
		log:      log.Named("queue"),
		timers:   make(map[string]*time.Timer),
		attempts: make(map[string]int),
	}
}

// Name implements system.Service.
func (q *MemoryQueue) Name() string { return "memory-queue" }

// Start implements system.Service. The memory queue has no worker loop.
func (q *MemoryQueue) Start(ctx context.Context) error { return nil }

// Stop cancels pending timers and waits for running jobs. Implements
// system.Service.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()

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

// Enqueue schedules jobID after delay. An existing timer for the same id is
// replaced.
func (q *MemoryQueue) Enqueue(_ context.Context, jobID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return nil
	}
	if timer, ok := q.timers[jobID]; ok {
		timer.Stop()
	}
	q.timers[jobID] = time.AfterFunc(delay, func() { q.fire(jobID) })
	return nil
}

func (q *MemoryQueue) fire(jobID string) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	delete(q.timers, jobID)
	q.wg.Add(1)
	q.mu.Unlock()
	defer q.wg.Done()

	err := q.handler(context.Background(), jobID)
	if err == nil {
		q.mu.Lock()
		delete(q.attempts, jobID)
		q.mu.Unlock()
		return
	}

	q.mu.Lock()
	q.attempts[jobID]++
	attempts := q.attempts[jobID]
	if attempts >= maxAttempts {
		delete(q.attempts, jobID)
	}
	q.mu.Unlock()

	if attempts >= maxAttempts {
		q.log.WithError(err).WithField("job_id", jobID).Error("job dropped after repeated failures")
		return
	}
	q.log.WithError(err).WithFields(map[string]interface{}{
		"job_id":  jobID,
		"attempt": attempts,
	}).Warn("job failed, retrying")
	_ = q.Enqueue(context.Background(), jobID, retryDelay)
}
