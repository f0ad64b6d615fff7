// Package writeback persists cached board state to durable storage on a
// debounced schedule. Edits mark a board dirty and arm a timer; edits that
// arrive while the timer is pending push it back, so a burst of drags
// settles into one write.
package writeback

import (
	"context"
	"sync"
	"time"

	"github.com/rankboard/rankboard/internal/app/metrics"
	"github.com/rankboard/rankboard/internal/app/queue"
	"github.com/rankboard/rankboard/internal/logging"
)

// DefaultWindow is the debounce window between the last edit and the flush.
const DefaultWindow = 5 * time.Second

// Scheduler tracks dirty boards and arms one debounce timer per board.
type Scheduler struct {
	window time.Duration
	queue  queue.Queue
	log    *logging.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	dirty   map[string]time.Time
	stopped bool
	now     func() time.Time
}

// NewScheduler creates a scheduler flushing through q. A non-positive
// window falls back to DefaultWindow.
func NewScheduler(q queue.Queue, window time.Duration, log *logging.Logger) *Scheduler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Scheduler{
		window: window,
		queue:  q,
		log:    log.Named("writeback"),
		timers: make(map[string]*time.Timer),
		dirty:  make(map[string]time.Time),
		now:    time.Now,
	}
}

// NotifyChanged records an edit to boardID. The board's debounce timer is
// (re)armed for a full window from now.
func (s *Scheduler) NotifyChanged(boardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.dirty[boardID] = s.now()
	if timer, ok := s.timers[boardID]; ok {
		timer.Stop()
		metrics.RecordDebounceReset()
	}
	s.timers[boardID] = time.AfterFunc(s.window, func() { s.flush(boardID) })
}

func (s *Scheduler) flush(boardID string) {
	s.mu.Lock()
	delete(s.timers, boardID)
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	if err := s.queue.Enqueue(context.Background(), boardID, 0); err != nil {
		s.log.WithError(err).WithField("board_id", boardID).Error("flush enqueue failed")
	}
}

// MarkClean clears boardID's dirty mark. Called by the reconciler after a
// successful persist; an edit racing the persist re-dirties the board via
// NotifyChanged, so nothing is lost.
func (s *Scheduler) MarkClean(boardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, pending := s.timers[boardID]; !pending {
		delete(s.dirty, boardID)
	}
}

// StaleDirty returns boards that have been dirty for at least age with no
// pending debounce timer. The sweep uses this to catch flushes lost to a
// queue failure or crash.
func (s *Scheduler) StaleDirty(age time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-age)
	var stale []string
	for boardID, since := range s.dirty {
		if _, pending := s.timers[boardID]; pending {
			continue
		}
		if since.Before(cutoff) {
			stale = append(stale, boardID)
		}
	}
	return stale
}

// Stop cancels all pending timers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for boardID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, boardID)
	}
}

// Pending reports whether boardID has an armed debounce timer.
func (s *Scheduler) Pending(boardID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[boardID]
	return ok
}
