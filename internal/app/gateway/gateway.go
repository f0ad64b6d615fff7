// Package gateway is the realtime entry point: it upgrades authenticated
// websocket connections, routes board events through the room registry and
// presence tracker, applies moves to the cached board state, and marks
// boards dirty for the write-behind scheduler.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rankboard/rankboard/internal/app/cache"
	"github.com/rankboard/rankboard/internal/app/metrics"
	"github.com/rankboard/rankboard/internal/app/presence"
	"github.com/rankboard/rankboard/internal/app/rank"
	"github.com/rankboard/rankboard/internal/app/room"
	"github.com/rankboard/rankboard/internal/app/writeback"
	"github.com/rankboard/rankboard/internal/logging"
	"github.com/rankboard/rankboard/internal/middleware"
)

// Gateway owns the websocket endpoint and its event dispatch.
type Gateway struct {
	rooms    *room.Registry
	presence *presence.Tracker
	states   *cache.ReadThrough
	sched    *writeback.Scheduler
	auth     *middleware.AuthMiddleware
	upgrader websocket.Upgrader
	log      *logging.Logger
}

// New wires a gateway. originAllowed gates the websocket handshake the same
// way CORS gates the REST surface.
func New(
	rooms *room.Registry,
	tracker *presence.Tracker,
	states *cache.ReadThrough,
	sched *writeback.Scheduler,
	auth *middleware.AuthMiddleware,
	originAllowed func(string) bool,
	log *logging.Logger,
) *Gateway {
	return &Gateway{
		rooms:    rooms,
		presence: tracker,
		states:   states,
		sched:    sched,
		auth:     auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return originAllowed(origin)
			},
		},
		log: log.Named("gateway"),
	}
}

// HandleWS authenticates the request, upgrades it, and runs the connection
// until it closes.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := g.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := &wsConn{
		id:       uuid.NewString(),
		userID:   claims.UserID,
		username: claims.Username,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		log:      g.log,
	}

	metrics.ConnectionOpened()
	g.log.WithFields(map[string]interface{}{
		"conn_id": conn.id,
		"user_id": conn.userID,
	}).Info("websocket connected")

	go conn.writePump()
	g.readPump(r.Context(), conn)
}

func (g *Gateway) readPump(ctx context.Context, conn *wsConn) {
	defer g.disconnect(conn)

	conn.ws.SetReadLimit(maxMessageSize)
	conn.ws.SetReadDeadline(timeNow().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(timeNow().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.WithError(err).WithField("conn_id", conn.id).Warn("websocket read failed")
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			g.sendError(conn, "invalid_input", "malformed frame")
			continue
		}
		g.dispatch(ctx, conn, env)
	}
}

func (g *Gateway) disconnect(conn *wsConn) {
	g.presence.ReleaseAll(conn.id)
	g.rooms.RemoveAll(conn)
	conn.close()
	metrics.ConnectionClosed()
	g.log.WithFields(map[string]interface{}{
		"conn_id": conn.id,
		"user_id": conn.userID,
	}).Info("websocket disconnected")
}

func (g *Gateway) dispatch(ctx context.Context, conn *wsConn, env envelope) {
	var err error
	switch env.Event {
	case "joinBoard":
		err = g.handleJoin(ctx, conn, env.Data)
	case "leaveBoard":
		err = g.handleLeave(conn, env.Data)
	case "cardMove":
		err = g.handleCardMove(ctx, conn, env.Data)
	case "columnMove":
		err = g.handleColumnMove(ctx, conn, env.Data)
	case "cardDragStart":
		err = g.handleDragStart(conn, env.Data)
	case "cardDragEnd":
		err = g.handleDragEnd(conn, env.Data)
	default:
		err = errUnknownEvent
	}

	if err != nil {
		metrics.RecordEvent(env.Event, "error")
		g.sendError(conn, codeFor(err), err.Error())
		return
	}
	metrics.RecordEvent(env.Event, "ok")
}

type joinPayload struct {
	BoardID string `json:"boardId"`
}

func (g *Gateway) handleJoin(ctx context.Context, conn *wsConn, data json.RawMessage) error {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.BoardID == "" {
		return errBadPayload
	}

	if err := g.rooms.Join(ctx, conn, p.BoardID); err != nil {
		if err == room.ErrAccessDenied {
			return errAccessDenied
		}
		return err
	}

	state, err := g.states.GetBoardState(ctx, p.BoardID)
	if err != nil {
		g.rooms.Leave(conn, p.BoardID)
		return err
	}

	conn.Send("joined", map[string]interface{}{
		"boardId": p.BoardID,
		"state":   state,
	})
	return nil
}

func (g *Gateway) handleLeave(conn *wsConn, data json.RawMessage) error {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.BoardID == "" {
		return errBadPayload
	}
	g.rooms.Leave(conn, p.BoardID)
	conn.Send("left", map[string]interface{}{"boardId": p.BoardID})
	return nil
}

type cardMovePayload struct {
	BoardID  string `json:"boardId"`
	CardID   string `json:"cardId"`
	ColumnID string `json:"columnId"`
	PrevRank string `json:"prevRank"`
	NextRank string `json:"nextRank"`
	Rank     string `json:"rank"`
}

func (g *Gateway) handleCardMove(ctx context.Context, conn *wsConn, data json.RawMessage) error {
	var p cardMovePayload
	if err := json.Unmarshal(data, &p); err != nil || p.BoardID == "" || p.CardID == "" || p.ColumnID == "" {
		return errBadPayload
	}
	if !g.rooms.Contains(conn.id, p.BoardID) {
		return errNotInRoom
	}

	newRank, err := g.resolveRank(p.PrevRank, p.NextRank, p.Rank)
	if err != nil {
		return err
	}

	state, err := g.states.GetBoardState(ctx, p.BoardID)
	if err != nil {
		return err
	}
	if !state.MoveCard(p.CardID, p.ColumnID, newRank) {
		return errUnknownTarget
	}
	if err := g.states.SetBoardState(ctx, state); err != nil {
		return err
	}
	g.sched.NotifyChanged(p.BoardID)

	g.rooms.Broadcast(p.BoardID, "cardMoved", map[string]interface{}{
		"boardId":  p.BoardID,
		"cardId":   p.CardID,
		"columnId": p.ColumnID,
		"rank":     newRank,
	}, conn.id)
	return nil
}

type columnMovePayload struct {
	BoardID  string `json:"boardId"`
	ColumnID string `json:"columnId"`
	PrevRank string `json:"prevRank"`
	NextRank string `json:"nextRank"`
	Rank     string `json:"rank"`
}

func (g *Gateway) handleColumnMove(ctx context.Context, conn *wsConn, data json.RawMessage) error {
	var p columnMovePayload
	if err := json.Unmarshal(data, &p); err != nil || p.BoardID == "" || p.ColumnID == "" {
		return errBadPayload
	}
	if !g.rooms.Contains(conn.id, p.BoardID) {
		return errNotInRoom
	}

	newRank, err := g.resolveRank(p.PrevRank, p.NextRank, p.Rank)
	if err != nil {
		return err
	}

	state, err := g.states.GetBoardState(ctx, p.BoardID)
	if err != nil {
		return err
	}
	if !state.MoveColumn(p.ColumnID, newRank) {
		return errUnknownTarget
	}
	if err := g.states.SetBoardState(ctx, state); err != nil {
		return err
	}
	g.sched.NotifyChanged(p.BoardID)

	g.rooms.Broadcast(p.BoardID, "columnMoved", map[string]interface{}{
		"boardId":  p.BoardID,
		"columnId": p.ColumnID,
		"rank":     newRank,
	}, conn.id)
	return nil
}

// resolveRank computes the rank for a drop between prevRank and nextRank.
// When the neighbor pair has no room left (or is invalid) the client's own
// rank is used as-is, so a stale view degrades to last-write-wins instead
// of a rejected move.
func (g *Gateway) resolveRank(prevRank, nextRank, fallback string) (string, error) {
	key, err := rank.ForPosition(prevRank, nextRank)
	if err == nil {
		return key, nil
	}
	if fallback != "" && rank.Valid(fallback) {
		return fallback, nil
	}
	return "", errBadRank
}

type dragPayload struct {
	BoardID string `json:"boardId"`
	CardID  string `json:"cardId"`
}

func (g *Gateway) handleDragStart(conn *wsConn, data json.RawMessage) error {
	var p dragPayload
	if err := json.Unmarshal(data, &p); err != nil || p.BoardID == "" || p.CardID == "" {
		return errBadPayload
	}
	if !g.rooms.Contains(conn.id, p.BoardID) {
		return errNotInRoom
	}
	g.presence.Acquire(p.BoardID, p.CardID, presence.Holder{
		ConnID: conn.id,
		UserID: conn.userID,
		Label:  conn.username,
	})
	return nil
}

func (g *Gateway) handleDragEnd(conn *wsConn, data json.RawMessage) error {
	var p dragPayload
	if err := json.Unmarshal(data, &p); err != nil || p.BoardID == "" || p.CardID == "" {
		return errBadPayload
	}
	if !g.rooms.Contains(conn.id, p.BoardID) {
		return errNotInRoom
	}
	g.presence.Release(p.CardID, conn.id)
	return nil
}

func (g *Gateway) sendError(conn *wsConn, code, message string) {
	conn.Send("error", map[string]interface{}{
		"code":    code,
		"message": message,
	})
}
