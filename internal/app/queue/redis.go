package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rankboard/rankboard/internal/logging"
)

const pollInterval = 250 * time.Millisecond

// RedisQueue stores pending jobs in a sorted set scored by their due time,
// so a restart does not lose scheduled flushes. ZADD on an existing member
// overwrites its score, which gives dedup-by-id for free.
type RedisQueue struct {
	client  *redis.Client
	handler Handler
	log     *logging.Logger

	jobsKey     string
	attemptsKey string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue wraps an existing client. namespace prefixes the Redis keys
// so multiple deployments can share one instance.
func NewRedisQueue(client *redis.Client, namespace string, handler Handler, log *logging.Logger) *RedisQueue {
	if namespace == "" {
		namespace = "rankboard"
	}
	return &RedisQueue{
		client:      client,
		handler:     handler,
		log:         log.Named("queue"),
		jobsKey:     namespace + ":persist:jobs",
		attemptsKey: namespace + ":persist:attempts",
	}
}

// Name implements system.Service.
func (q *RedisQueue) Name() string { return "redis-queue" }

// Enqueue schedules jobID to fire after delay, replacing any earlier
// schedule for the same id.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string, delay time.Duration) error {
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.jobsKey, redis.Z{Score: due, Member: jobID}).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", jobID, err)
	}
	return nil
}

// Start launches the polling worker. Implements system.Service.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.run(runCtx)
	return nil
}

// Stop halts the worker and waits for in-flight jobs. Implements
// system.Service.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel = nil
	q.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *RedisQueue) run(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drainDue(ctx)
		}
	}
}

// drainDue claims and processes every job whose due time has passed. The
// ZRem result is the claim: when it returns 0 another worker already took
// the job.
func (q *RedisQueue) drainDue(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, q.jobsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.log.WithError(err).Warn("poll failed")
		}
		return
	}

	for _, jobID := range ids {
		removed, err := q.client.ZRem(ctx, q.jobsKey, jobID).Result()
		if err != nil || removed == 0 {
			continue
		}
		q.process(ctx, jobID)
	}
}

func (q *RedisQueue) process(ctx context.Context, jobID string) {
	err := q.handler(ctx, jobID)
	if err == nil {
		q.client.HDel(ctx, q.attemptsKey, jobID)
		return
	}

	attempts, incrErr := q.client.HIncrBy(ctx, q.attemptsKey, jobID, 1).Result()
	if incrErr != nil {
		q.log.WithError(incrErr).WithField("job_id", jobID).Error("attempt tracking failed")
		return
	}
	if attempts >= maxAttempts {
		q.client.HDel(ctx, q.attemptsKey, jobID)
		q.log.WithError(err).WithFields(map[string]interface{}{
			"job_id":   jobID,
			"attempts": attempts,
		}).Error("job dropped after repeated failures")
		return
	}

	q.log.WithError(err).WithFields(map[string]interface{}{
		"job_id":  jobID,
		"attempt": attempts,
	}).Warn("job failed, retrying")
	if enqErr := q.Enqueue(ctx, jobID, retryDelay); enqErr != nil {
		q.log.WithError(enqErr).WithField("job_id", jobID).Error("retry enqueue failed")
	}
}
