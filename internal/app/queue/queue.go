// Package queue delivers delayed, deduplicated persistence jobs. A job is
// just an id (the board to flush); enqueueing the same id again before it
// fires replaces the earlier schedule instead of adding a second job.
package queue

import (
	"context"
	"time"
)

// Handler processes one due job. A non-nil error triggers a retry.
type Handler func(ctx context.Context, jobID string) error

// Queue schedules jobs keyed by id.
type Queue interface {
	Enqueue(ctx context.Context, jobID string, delay time.Duration) error
}

const (
	// maxAttempts bounds retries of a failing job before it is dropped.
	maxAttempts = 3

	// retryDelay spaces retry attempts.
	retryDelay = 2 * time.Second
)
