// Package cache holds the hot copy of each board's full state. The realtime
// gateway reads and mutates board state here; the write-behind scheduler
// flushes it to durable storage later.
package cache

import (
	"context"
	"time"

	"github.com/rankboard/rankboard/internal/app/domain/board"
)

// DefaultTTL is how long a cached board survives without being refreshed.
const DefaultTTL = time.Hour

// BoardStateCache stores serialized board state keyed by board id.
type BoardStateCache interface {
	// GetBoardState returns the cached state and whether it was present.
	GetBoardState(ctx context.Context, boardID string) (board.State, bool, error)

	// SetBoardState writes the state, resetting its TTL.
	SetBoardState(ctx context.Context, state board.State) error

	// Invalidate drops the cached state. Missing keys are not an error.
	Invalidate(ctx context.Context, boardID string) error
}

func boardKey(boardID string) string {
	return "board:" + boardID
}
