package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rankboard/rankboard/internal/app/domain/board"
)

type memoryEntry struct {
	state     board.State
	expiresAt time.Time
}

// MemoryCache is a map-backed BoardStateCache for tests and single-node
// deployments without Redis.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

var _ BoardStateCache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty cache. A non-positive ttl falls back to
// DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) GetBoardState(ctx context.Context, boardID string) (board.State, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[boardID]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return board.State{}, false, nil
	}
	// Clone on the way out: MoveCard/MoveColumn mutate slices in place, and
	// callers must not reach into the cached entry's backing arrays.
	return entry.state.Clone(), true, nil
}

func (c *MemoryCache) SetBoardState(ctx context.Context, state board.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[state.Board.ID] = memoryEntry{state: state.Clone(), expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, boardID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, boardID)
	return nil
}
