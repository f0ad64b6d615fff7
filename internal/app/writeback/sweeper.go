package writeback

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rankboard/rankboard/internal/app/queue"
	"github.com/rankboard/rankboard/internal/logging"
)

// DefaultSweepInterval is how often the safety-net sweep runs.
const DefaultSweepInterval = time.Minute

// Sweeper periodically re-enqueues boards whose debounce flush never
// landed, covering queue outages and dropped timers.
type Sweeper struct {
	cron  *cron.Cron
	sched *Scheduler
	queue queue.Queue
	age   time.Duration
	log   *logging.Logger
}

// NewSweeper schedules a sweep every interval. Boards dirty for longer than
// twice the scheduler's debounce window with no pending timer are flushed.
func NewSweeper(sched *Scheduler, q queue.Queue, interval time.Duration, log *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &Sweeper{
		cron:  cron.New(),
		sched: sched,
		queue: q,
		age:   2 * sched.window,
		log:   log.Named("sweeper"),
	}
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.sweep))
	return s
}

// Name implements system.Service.
func (s *Sweeper) Name() string { return "writeback-sweeper" }

// Start begins the cron schedule. Implements system.Service.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep. Implements
// system.Service.
func (s *Sweeper) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) sweep() {
	stale := s.sched.StaleDirty(s.age)
	if len(stale) == 0 {
		return
	}

	s.log.WithField("count", len(stale)).Warn("sweeping boards with missed flushes")
	for _, boardID := range stale {
		if err := s.queue.Enqueue(context.Background(), boardID, 0); err != nil {
			s.log.WithError(err).WithField("board_id", boardID).Error("sweep enqueue failed")
		}
	}
}
