package cache

import (
	"context"

	"github.com/rankboard/rankboard/internal/app/domain/board"
	"github.com/rankboard/rankboard/internal/app/storage"
	"github.com/rankboard/rankboard/internal/logging"
)

// ReadThrough serves board state from the cache, loading missing entries
// from durable storage and caching them on the way out.
type ReadThrough struct {
	cache BoardStateCache
	store storage.StateStore
	log   *logging.Logger
}

// NewReadThrough wires a cache in front of a state store.
func NewReadThrough(c BoardStateCache, s storage.StateStore, log *logging.Logger) *ReadThrough {
	return &ReadThrough{cache: c, store: s, log: log.Named("cache")}
}

// GetBoardState returns the cached state, falling back to storage on a miss.
// A cache read error degrades to a storage read rather than failing the
// request.
func (r *ReadThrough) GetBoardState(ctx context.Context, boardID string) (board.State, error) {
	state, hit, err := r.cache.GetBoardState(ctx, boardID)
	if err != nil {
		r.log.WithContext(ctx).WithError(err).Warn("cache read failed, falling back to storage")
	} else if hit {
		return state, nil
	}

	state, err = r.store.GetBoardState(ctx, boardID)
	if err != nil {
		return board.State{}, err
	}
	if err := r.cache.SetBoardState(ctx, state); err != nil {
		r.log.WithContext(ctx).WithError(err).Warn("cache fill failed")
	}
	return state, nil
}

// SetBoardState writes the state to the cache only. Durable persistence is
// the write-behind scheduler's job.
func (r *ReadThrough) SetBoardState(ctx context.Context, state board.State) error {
	return r.cache.SetBoardState(ctx, state)
}

// Invalidate drops the cached entry.
func (r *ReadThrough) Invalidate(ctx context.Context, boardID string) error {
	return r.cache.Invalidate(ctx, boardID)
}
