// Package room tracks which realtime connections are subscribed to which
// board and fans events out to them.
package room

import (
	"context"
	"errors"
	"sync"

	"github.com/rankboard/rankboard/internal/app/metrics"
	"github.com/rankboard/rankboard/internal/logging"
)

// ErrAccessDenied is returned when a join fails the authorization check.
var ErrAccessDenied = errors.New("board access denied")

// Conn is one realtime connection. Send must never block: delivery is
// best-effort and a slow or dead member is simply skipped.
type Conn interface {
	ID() string
	UserID() string
	Send(event string, payload interface{})
}

// AccessChecker decides whether a user may enter a board room.
type AccessChecker interface {
	CanAccessBoard(ctx context.Context, userID, boardID string) (bool, error)
}

// Registry is the process-local room table. Rooms are created on first join
// and deleted when the last member leaves; they carry no durable state.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]Conn
	checker AccessChecker
	log     *logging.Logger
}

// NewRegistry creates an empty registry gated by the given access checker.
func NewRegistry(checker AccessChecker, log *logging.Logger) *Registry {
	return &Registry{
		rooms:   make(map[string]map[string]Conn),
		checker: checker,
		log:     log.Named("room"),
	}
}

// Join subscribes conn to the board's room after an access check. The check
// may block on storage; it runs before any room state is touched so a slow
// join never delays broadcasts to existing members.
func (r *Registry) Join(ctx context.Context, conn Conn, boardID string) error {
	ok, err := r.checker.CanAccessBoard(ctx, conn.UserID(), boardID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.rooms[boardID]
	if !exists {
		members = make(map[string]Conn)
		r.rooms[boardID] = members
	}
	members[conn.ID()] = conn

	r.log.WithFields(map[string]interface{}{
		"board_id": boardID,
		"conn_id":  conn.ID(),
		"members":  len(members),
	}).Debug("joined room")
	return nil
}

// Leave unsubscribes conn from the board's room. No-op if absent.
func (r *Registry) Leave(conn Conn, boardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conn.ID(), boardID)
}

func (r *Registry) leaveLocked(connID, boardID string) {
	members, exists := r.rooms[boardID]
	if !exists {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, boardID)
	}
}

// Broadcast delivers event to every current member of the board's room
// except exceptConnID (empty string excludes nobody). Delivery is
// fire-and-forget.
func (r *Registry) Broadcast(boardID, event string, payload interface{}, exceptConnID string) {
	r.mu.RLock()
	members := r.rooms[boardID]
	targets := make([]Conn, 0, len(members))
	for id, conn := range members {
		if id == exceptConnID {
			continue
		}
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	metrics.RecordBroadcast(event)
	for _, conn := range targets {
		conn.Send(event, payload)
	}
}

// RemoveAll drops conn from every room it belongs to and returns the board
// ids it left. Called on disconnect.
func (r *Registry) RemoveAll(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for boardID, members := range r.rooms {
		if _, ok := members[conn.ID()]; ok {
			left = append(left, boardID)
			r.leaveLocked(conn.ID(), boardID)
		}
	}
	return left
}

// Contains reports whether conn is currently a member of the board's room.
func (r *Registry) Contains(connID, boardID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[boardID][connID]
	return ok
}

// MemberCount returns the current size of the board's room.
func (r *Registry) MemberCount(boardID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[boardID])
}
