package writeback

import (
	"context"
	"fmt"
	"time"

	"github.com/rankboard/rankboard/internal/app/domain/board"
	"github.com/rankboard/rankboard/internal/app/metrics"
	"github.com/rankboard/rankboard/internal/app/storage"
	"github.com/rankboard/rankboard/internal/logging"
)

// StateSource yields the authoritative current state of a board, normally
// the cache read-through.
type StateSource interface {
	GetBoardState(ctx context.Context, boardID string) (board.State, error)
}

// Reconciler copies a board's cached state into durable storage. It is the
// queue handler for persistence jobs.
type Reconciler struct {
	source StateSource
	sink   storage.StateStore
	sched  *Scheduler
	log    *logging.Logger
}

// NewReconciler wires source state into the durable sink.
func NewReconciler(source StateSource, sink storage.StateStore, sched *Scheduler, log *logging.Logger) *Reconciler {
	return &Reconciler{source: source, sink: sink, sched: sched, log: log.Named("reconciler")}
}

// Reconcile persists boardID's current state. On success the board's dirty
// mark is cleared.
func (r *Reconciler) Reconcile(ctx context.Context, boardID string) error {
	start := time.Now()

	state, err := r.source.GetBoardState(ctx, boardID)
	if err != nil {
		metrics.RecordPersistenceJob("error", time.Since(start))
		return fmt.Errorf("load state %s: %w", boardID, err)
	}
	if err := r.sink.UpsertBoardState(ctx, state); err != nil {
		metrics.RecordPersistenceJob("error", time.Since(start))
		return fmt.Errorf("persist %s: %w", boardID, err)
	}

	r.sched.MarkClean(boardID)
	metrics.RecordPersistenceJob("success", time.Since(start))
	r.log.WithFields(map[string]interface{}{
		"board_id": boardID,
		"columns":  len(state.Columns),
	}).Debug("board persisted")
	return nil
}
