package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rankboard/rankboard/internal/app/cache"
	"github.com/rankboard/rankboard/internal/app/domain/board"
	"github.com/rankboard/rankboard/internal/app/domain/user"
	"github.com/rankboard/rankboard/internal/app/presence"
	"github.com/rankboard/rankboard/internal/app/queue"
	"github.com/rankboard/rankboard/internal/app/room"
	"github.com/rankboard/rankboard/internal/app/services/boards"
	"github.com/rankboard/rankboard/internal/app/storage/memory"
	"github.com/rankboard/rankboard/internal/app/writeback"
	"github.com/rankboard/rankboard/internal/logging"
	"github.com/rankboard/rankboard/internal/middleware"
)

type fixture struct {
	store   *memory.Store
	auth    *middleware.AuthMiddleware
	server  *httptest.Server
	sched   *writeback.Scheduler
	jobs    *atomic.Int64
	boardID string
	col1    string
	col2    string
	cardA   string
	cardB   string
	cardC   string
	owner   user.User
	member  user.User
}

func newFixture(t *testing.T, window time.Duration) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logging.New("test")
	store := memory.New()

	owner, err := store.CreateUser(ctx, user.User{Email: "owner@example.com", Username: "owner", PasswordHash: "x"})
	require.NoError(t, err)
	member, err := store.CreateUser(ctx, user.User{Email: "member@example.com", Username: "member", PasswordHash: "x"})
	require.NoError(t, err)

	b, err := store.CreateBoard(ctx, board.Board{Title: "roadmap", OwnerID: owner.ID})
	require.NoError(t, err)
	_, err = store.AddMember(ctx, board.Member{BoardID: b.ID, UserID: member.ID, Role: board.RoleMember})
	require.NoError(t, err)

	col1, err := store.CreateColumn(ctx, board.Column{BoardID: b.ID, Title: "todo", Rank: "0|hzzzzz"})
	require.NoError(t, err)
	col2, err := store.CreateColumn(ctx, board.Column{BoardID: b.ID, Title: "done", Rank: "0|i00000"})
	require.NoError(t, err)

	cardA, err := store.CreateCard(ctx, board.Card{ColumnID: col1.ID, Content: "a", Rank: "0|hzzzzz"})
	require.NoError(t, err)
	cardB, err := store.CreateCard(ctx, board.Card{ColumnID: col1.ID, Content: "b", Rank: "0|i00000"})
	require.NoError(t, err)
	cardC, err := store.CreateCard(ctx, board.Card{ColumnID: col2.ID, Content: "c", Rank: "0|hzzzzz"})
	require.NoError(t, err)

	mc := cache.NewMemoryCache(time.Hour)
	rt := cache.NewReadThrough(mc, store, log)
	boardSvc := boards.NewService(store, mc, log)

	var jobs atomic.Int64
	var rec *writeback.Reconciler
	q := queue.NewMemoryQueue(func(ctx context.Context, jobID string) error {
		jobs.Add(1)
		return rec.Reconcile(ctx, jobID)
	}, log)
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	sched := writeback.NewScheduler(q, window, log)
	t.Cleanup(sched.Stop)
	rec = writeback.NewReconciler(rt, store, sched, log)

	auth := middleware.NewAuthMiddleware("test-secret", time.Hour, log, nil)
	rooms := room.NewRegistry(boardSvc, log)
	tracker := presence.NewTracker(rooms, log)
	g := New(rooms, tracker, rt, sched, auth, func(string) bool { return true }, log)

	server := httptest.NewServer(http.HandlerFunc(g.HandleWS))
	t.Cleanup(server.Close)

	return &fixture{
		store:   store,
		auth:    auth,
		server:  server,
		sched:   sched,
		jobs:    &jobs,
		boardID: b.ID,
		col1:    col1.ID,
		col2:    col2.ID,
		cardA:   cardA.ID,
		cardB:   cardB.ID,
		cardC:   cardC.ID,
		owner:   owner,
		member:  member,
	}
}

func (f *fixture) dial(t *testing.T, u user.User) *websocket.Conn {
	t.Helper()
	token, err := f.auth.IssueToken(u.ID, u.Email, u.Username)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	header := http.Header{"Authorization": {"Bearer " + token}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(map[string]interface{}{"event": event, "data": json.RawMessage(data)})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func recv(t *testing.T, ws *websocket.Conn) (string, map[string]interface{}) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Event string                 `json:"event"`
		Data  map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	return env.Event, env.Data
}

func recvEvent(t *testing.T, ws *websocket.Conn, want string) map[string]interface{} {
	t.Helper()
	event, data := recv(t, ws)
	require.Equal(t, want, event)
	return data
}

func expectSilence(t *testing.T, ws *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(d)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err, "expected no frame")
	netErr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok && netErr.Timeout(), "expected read timeout, got %v", err)
}

func join(t *testing.T, ws *websocket.Conn, boardID string) {
	t.Helper()
	send(t, ws, "joinBoard", map[string]string{"boardId": boardID})
	data := recvEvent(t, ws, "joined")
	require.Equal(t, boardID, data["boardId"])
	require.NotNil(t, data["state"])
}

func TestJoinRequiresMembership(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)

	ctx := context.Background()
	stranger, err := f.store.CreateUser(ctx, user.User{Email: "stranger@example.com", Username: "stranger", PasswordHash: "x"})
	require.NoError(t, err)

	ws := f.dial(t, stranger)
	send(t, ws, "joinBoard", map[string]string{"boardId": f.boardID})
	data := recvEvent(t, ws, "error")
	require.Equal(t, "forbidden", data["code"])
}

func TestDialRejectsMissingToken(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCardMoveEndToEnd(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)

	ws1 := f.dial(t, f.owner)
	ws2 := f.dial(t, f.member)
	join(t, ws1, f.boardID)
	join(t, ws2, f.boardID)

	// Move card C between the two adjacent cards in column 1.
	send(t, ws1, "cardMove", map[string]string{
		"boardId":   f.boardID,
		"cardId":    f.cardC,
		"columnId":  f.col1,
		"prevRank":  "0|hzzzzz",
		"nextRank":  "0|i00000",
	})

	data := recvEvent(t, ws2, "cardMoved")
	require.Equal(t, f.cardC, data["cardId"])
	require.Equal(t, f.col1, data["columnId"])

	gotRank := data["rank"].(string)
	require.Greater(t, gotRank, "0|hzzzzz")
	require.Less(t, gotRank, "0|i00000")

	// The originator gets no echo.
	expectSilence(t, ws1, 200*time.Millisecond)

	// One debounced persistence job lands the move in storage.
	require.Eventually(t, func() bool { return f.jobs.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, int64(1), f.jobs.Load())

	persisted, err := f.store.GetCard(context.Background(), f.cardC)
	require.NoError(t, err)
	require.Equal(t, f.col1, persisted.ColumnID)
	require.Equal(t, gotRank, persisted.Rank)
}

func TestBurstCoalescesToOneJob(t *testing.T) {
	f := newFixture(t, 150*time.Millisecond)

	ws1 := f.dial(t, f.owner)
	join(t, ws1, f.boardID)

	ranks := []struct{ prev, next string }{
		{"", "0|hzzzzz"},
		{"0|hzzzzz", "0|i00000"},
		{"0|i00000", ""},
	}
	for _, r := range ranks {
		send(t, ws1, "cardMove", map[string]string{
			"boardId":   f.boardID,
			"cardId":    f.cardC,
			"columnId":  f.col1,
			"prevRank":  r.prev,
			"nextRank":  r.next,
		})
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return f.jobs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, int64(1), f.jobs.Load(), "burst must settle into one persistence job")
}

func TestColumnMoveBroadcast(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)

	ws1 := f.dial(t, f.owner)
	ws2 := f.dial(t, f.member)
	join(t, ws1, f.boardID)
	join(t, ws2, f.boardID)

	// Move the second column before the first.
	send(t, ws1, "columnMove", map[string]string{
		"boardId":  f.boardID,
		"columnId": f.col2,
		"prevRank": "",
		"nextRank": "0|hzzzzz",
	})

	data := recvEvent(t, ws2, "columnMoved")
	require.Equal(t, f.col2, data["columnId"])
	require.Less(t, data["rank"].(string), "0|hzzzzz")
}

func TestDragLockLifecycle(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)

	ws1 := f.dial(t, f.owner)
	ws2 := f.dial(t, f.member)
	join(t, ws1, f.boardID)
	join(t, ws2, f.boardID)

	send(t, ws1, "cardDragStart", map[string]string{"boardId": f.boardID, "cardId": f.cardA})
	data := recvEvent(t, ws2, "cardLocked")
	require.Equal(t, f.cardA, data["cardId"])
	require.Equal(t, f.owner.ID, data["userId"])
	require.Equal(t, "owner", data["label"])

	send(t, ws1, "cardDragEnd", map[string]string{"boardId": f.boardID, "cardId": f.cardA})
	data = recvEvent(t, ws2, "cardUnlocked")
	require.Equal(t, f.cardA, data["cardId"])
}

func TestDisconnectReleasesLocks(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)

	ws1 := f.dial(t, f.owner)
	ws2 := f.dial(t, f.member)
	join(t, ws1, f.boardID)
	join(t, ws2, f.boardID)

	send(t, ws1, "cardDragStart", map[string]string{"boardId": f.boardID, "cardId": f.cardA})
	recvEvent(t, ws2, "cardLocked")

	require.NoError(t, ws1.Close())

	data := recvEvent(t, ws2, "cardUnlocked")
	require.Equal(t, f.cardA, data["cardId"])
}

func TestMoveRequiresJoin(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)

	ws1 := f.dial(t, f.owner)
	send(t, ws1, "cardMove", map[string]string{
		"boardId":  f.boardID,
		"cardId":   f.cardC,
		"columnId": f.col1,
	})
	data := recvEvent(t, ws1, "error")
	require.Equal(t, "forbidden", data["code"])
}

func TestDragEndRequiresJoin(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)

	ws1 := f.dial(t, f.owner)
	send(t, ws1, "cardDragEnd", map[string]string{"boardId": f.boardID, "cardId": f.cardA})
	data := recvEvent(t, ws1, "error")
	require.Equal(t, "forbidden", data["code"])
}

func TestSendConcurrentWithClose(t *testing.T) {
	conn := &wsConn{
		id:   "c1",
		send: make(chan []byte, 1),
		log:  logging.New("test"),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			conn.Send("cardMoved", map[string]string{"cardId": "x"})
		}
	}()

	conn.close()
	conn.close()
	<-done

	// A straggler broadcast after disconnect must be a no-op, not a panic.
	conn.Send("cardMoved", map[string]string{"cardId": "x"})
}
