package room

import (
	"context"
	"sync"
	"testing"

	"github.com/rankboard/rankboard/internal/logging"
)

type allowAll struct{}

func (allowAll) CanAccessBoard(ctx context.Context, userID, boardID string) (bool, error) {
	return true, nil
}

type allowNone struct{}

func (allowNone) CanAccessBoard(ctx context.Context, userID, boardID string) (bool, error) {
	return false, nil
}

type fakeConn struct {
	id     string
	userID string

	mu     sync.Mutex
	events []string
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(event string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *fakeConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	copy(out, c.events)
	return out
}

func newTestRegistry(t *testing.T, checker AccessChecker) *Registry {
	t.Helper()
	return NewRegistry(checker, logging.New("test"))
}

func TestJoinDenied(t *testing.T) {
	reg := newTestRegistry(t, allowNone{})
	conn := &fakeConn{id: "c1", userID: "u1"}

	if err := reg.Join(context.Background(), conn, "b1"); err != ErrAccessDenied {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if reg.Contains("c1", "b1") {
		t.Fatal("denied conn must not be in the room")
	}
}

func TestBroadcastExcludesOriginator(t *testing.T) {
	reg := newTestRegistry(t, allowAll{})
	ctx := context.Background()

	origin := &fakeConn{id: "c1", userID: "u1"}
	other := &fakeConn{id: "c2", userID: "u2"}
	outsider := &fakeConn{id: "c3", userID: "u3"}

	if err := reg.Join(ctx, origin, "b1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := reg.Join(ctx, other, "b1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := reg.Join(ctx, outsider, "b2"); err != nil {
		t.Fatalf("join: %v", err)
	}

	reg.Broadcast("b1", "cardMoved", map[string]string{"cardId": "k"}, "c1")

	if got := origin.received(); len(got) != 0 {
		t.Fatalf("originator must not receive its own event, got %v", got)
	}
	if got := other.received(); len(got) != 1 || got[0] != "cardMoved" {
		t.Fatalf("expected [cardMoved] for other member, got %v", got)
	}
	if got := outsider.received(); len(got) != 0 {
		t.Fatalf("other room must not receive the event, got %v", got)
	}
}

func TestRemoveAll(t *testing.T) {
	reg := newTestRegistry(t, allowAll{})
	ctx := context.Background()
	conn := &fakeConn{id: "c1", userID: "u1"}

	for _, boardID := range []string{"b1", "b2"} {
		if err := reg.Join(ctx, conn, boardID); err != nil {
			t.Fatalf("join %s: %v", boardID, err)
		}
	}

	left := reg.RemoveAll(conn)
	if len(left) != 2 {
		t.Fatalf("expected to leave 2 rooms, got %v", left)
	}
	if reg.MemberCount("b1") != 0 || reg.MemberCount("b2") != 0 {
		t.Fatal("rooms should be empty after RemoveAll")
	}
}

func TestLeaveDropsEmptyRoom(t *testing.T) {
	reg := newTestRegistry(t, allowAll{})
	conn := &fakeConn{id: "c1", userID: "u1"}

	if err := reg.Join(context.Background(), conn, "b1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	reg.Leave(conn, "b1")

	if reg.Contains("c1", "b1") {
		t.Fatal("conn still in room after leave")
	}
	// Leaving again is a no-op.
	reg.Leave(conn, "b1")
}
