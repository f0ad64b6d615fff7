// Package presence tracks advisory drag locks on cards. Locks are
// process-local hints and never block writes: a lock tells other members of
// a room that someone is mid-drag, nothing more.
package presence

import (
	"sync"

	"github.com/rankboard/rankboard/internal/logging"
)

// Broadcaster fans a presence event out to a board's room, skipping the
// connection that caused it.
type Broadcaster interface {
	Broadcast(boardID, event string, payload interface{}, exceptConnID string)
}

// Holder identifies who is holding a lock. ConnID ties the lock to one
// connection so a user with two tabs open cannot shadow their own locks.
type Holder struct {
	ConnID string
	UserID string
	Label  string
}

type lock struct {
	boardID string
	holder  Holder
}

// Tracker is the in-memory lock table.
type Tracker struct {
	mu          sync.Mutex
	locks       map[string]lock
	broadcaster Broadcaster
	log         *logging.Logger
}

// NewTracker creates an empty tracker broadcasting through b.
func NewTracker(b Broadcaster, log *logging.Logger) *Tracker {
	return &Tracker{
		locks:       make(map[string]lock),
		broadcaster: b,
		log:         log.Named("presence"),
	}
}

// Acquire records holder as the lock owner of cardID and announces it to the
// rest of the room. Locks are advisory, so acquiring an already-held lock
// simply overwrites it: the later drag is the one everyone should see.
func (t *Tracker) Acquire(boardID, cardID string, holder Holder) {
	t.mu.Lock()
	prev, held := t.locks[cardID]
	t.locks[cardID] = lock{boardID: boardID, holder: holder}
	t.mu.Unlock()

	if held && prev.holder.ConnID != holder.ConnID {
		t.log.WithFields(map[string]interface{}{
			"card_id":   cardID,
			"prev_user": prev.holder.UserID,
			"user_id":   holder.UserID,
		}).Debug("lock overwritten")
	}

	t.broadcaster.Broadcast(boardID, "cardLocked", map[string]interface{}{
		"cardId": cardID,
		"userId": holder.UserID,
		"label":  holder.Label,
	}, holder.ConnID)
}

// Release drops the lock on cardID if connID still holds it and announces
// the release. Releasing a lock that is absent or owned by another
// connection is a no-op.
func (t *Tracker) Release(cardID, connID string) {
	t.mu.Lock()
	l, held := t.locks[cardID]
	if !held || l.holder.ConnID != connID {
		t.mu.Unlock()
		return
	}
	delete(t.locks, cardID)
	t.mu.Unlock()

	t.broadcaster.Broadcast(l.boardID, "cardUnlocked", map[string]interface{}{
		"cardId": cardID,
	}, connID)
}

// ReleaseAll drops every lock held by connID, announcing each release to
// its board. Called on disconnect, so nothing is excluded from the
// broadcast.
func (t *Tracker) ReleaseAll(connID string) {
	t.mu.Lock()
	released := make(map[string]string)
	for cardID, l := range t.locks {
		if l.holder.ConnID == connID {
			released[cardID] = l.boardID
			delete(t.locks, cardID)
		}
	}
	t.mu.Unlock()

	for cardID, boardID := range released {
		t.broadcaster.Broadcast(boardID, "cardUnlocked", map[string]interface{}{
			"cardId": cardID,
		}, "")
	}
}

// HolderOf returns the current holder of cardID, if any.
func (t *Tracker) HolderOf(cardID string) (Holder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[cardID]
	return l.holder, ok
}
