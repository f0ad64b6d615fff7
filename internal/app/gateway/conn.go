package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rankboard/rankboard/internal/app/metrics"
	"github.com/rankboard/rankboard/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 32 * 1024
	sendBufferSize = 64
)

// envelope is the wire frame in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsConn is one websocket client. It satisfies room.Conn; Send queues onto
// a buffered channel drained by the write pump, and drops the frame when
// the buffer is full so one stalled client cannot hold up a broadcast.
type wsConn struct {
	id       string
	userID   string
	username string

	ws  *websocket.Conn
	log *logging.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) UserID() string { return c.userID }

func (c *wsConn) Send(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.WithError(err).WithField("event", event).Error("payload encode failed")
		return
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		c.log.WithError(err).WithField("event", event).Error("frame encode failed")
		return
	}

	// The closed check and the channel send share the mutex so a broadcast
	// racing a disconnect can never hit a closed channel.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		metrics.RecordBroadcastDrop()
		c.log.WithFields(map[string]interface{}{
			"conn_id": c.id,
			"event":   event,
		}).Warn("send buffer full, frame dropped")
	}
}

// close stops the write pump. Idempotent; Send calls after close are no-ops.
func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send channel and keeps the connection alive with
// pings. Exits when the send channel closes or a write fails.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
