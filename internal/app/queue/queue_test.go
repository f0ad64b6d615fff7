package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rankboard/rankboard/internal/logging"
)

type recorder struct {
	mu   sync.Mutex
	jobs []string
	errs map[string]int
}

func (r *recorder) handle(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, jobID)
	if r.errs[jobID] > 0 {
		r.errs[jobID]--
		return errors.New("transient")
	}
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMemoryQueueDelivers(t *testing.T) {
	rec := &recorder{errs: map[string]int{}}
	q := NewMemoryQueue(rec.handle, logging.New("test"))
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "b1", 10*time.Millisecond))
	waitFor(t, time.Second, func() bool { return len(rec.seen()) == 1 })

	require.Equal(t, []string{"b1"}, rec.seen())
}

func TestMemoryQueueDedupesByID(t *testing.T) {
	rec := &recorder{errs: map[string]int{}}
	q := NewMemoryQueue(rec.handle, logging.New("test"))
	defer q.Stop(context.Background())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, "b1", 50*time.Millisecond))
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, time.Second, func() bool { return len(rec.seen()) >= 1 })
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, []string{"b1"}, rec.seen(), "re-enqueue must replace, not duplicate")
}

func TestMemoryQueueRetries(t *testing.T) {
	rec := &recorder{errs: map[string]int{"b1": 1}}
	q := NewMemoryQueue(rec.handle, logging.New("test"))
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "b1", time.Millisecond))
	waitFor(t, 5*time.Second, func() bool { return len(rec.seen()) == 2 })
}

func TestRedisQueueDelivers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rec := &recorder{errs: map[string]int{}}
	q := NewRedisQueue(client, "test", rec.handle, logging.New("test"))

	ctx := context.Background()
	require.NoError(t, q.Start(ctx))
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	// Two schedules for the same id collapse into one job.
	require.NoError(t, q.Enqueue(ctx, "b1", 50*time.Millisecond))
	require.NoError(t, q.Enqueue(ctx, "b1", 50*time.Millisecond))
	require.NoError(t, q.Enqueue(ctx, "b2", 50*time.Millisecond))

	waitFor(t, 3*time.Second, func() bool { return len(rec.seen()) >= 2 })
	time.Sleep(300 * time.Millisecond)

	seen := rec.seen()
	require.Len(t, seen, 2)
	require.ElementsMatch(t, []string{"b1", "b2"}, seen)
}

func TestRedisQueueStopIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewRedisQueue(client, "test", func(context.Context, string) error { return nil }, logging.New("test"))
	require.NoError(t, q.Start(context.Background()))
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))
}
