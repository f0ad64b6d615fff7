package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rankboard/rankboard/internal/app/domain/board"
)

// RedisCache keeps board state in Redis as JSON blobs under board:{id}.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ BoardStateCache = (*RedisCache)(nil)

// NewRedisCache wraps an existing client. A non-positive ttl falls back to
// DefaultTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) GetBoardState(ctx context.Context, boardID string) (board.State, bool, error) {
	raw, err := c.client.Get(ctx, boardKey(boardID)).Bytes()
	if err == redis.Nil {
		return board.State{}, false, nil
	}
	if err != nil {
		return board.State{}, false, fmt.Errorf("cache get %s: %w", boardID, err)
	}

	var state board.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return board.State{}, false, fmt.Errorf("cache decode %s: %w", boardID, err)
	}
	return state, true, nil
}

func (c *RedisCache) SetBoardState(ctx context.Context, state board.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", state.Board.ID, err)
	}
	if err := c.client.Set(ctx, boardKey(state.Board.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", state.Board.ID, err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, boardID string) error {
	if err := c.client.Del(ctx, boardKey(boardID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", boardID, err)
	}
	return nil
}
