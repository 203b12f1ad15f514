// Package ws implements the streaming surface (§6): a long-lived
// bidirectional WebSocket channel that pushes progress events and periodic
// heartbeats to observers, scoped either to all jobs or to one job_id.
// Grounded on the teacher's internal/events consumer/dispatch shape
// (internal/fanout.Hub here plays the role of the teacher's internal/events
// bus), adapted to a bidirectional transport since the spec requires
// client ping / server pong (the teacher's own streaming surface is
// unidirectional SSE, which cannot express that).
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldnote/scrapesched/internal/domain"
	"github.com/fieldnote/scrapesched/internal/logger"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a pong before considering the
	// connection dead.
	pongWait = 60 * time.Second

	// pingPeriod sends a control-frame ping at a cadence below pongWait,
	// independent of the application-level heartbeat frame.
	pingPeriod = (pongWait * 9) / 10
)

// clientPingFrame/serverPongFrame are the application-level text frames the client
// and server exchange (§6: "Client may send ping; server replies pong"),
// distinct from the RFC 6455 control-frame ping/pong gorilla/websocket
// already handles for liveness.
const (
	clientPingFrame = "ping"
	serverPongFrame = "pong"
)

// heartbeatFrame is the periodic keep-alive event (§6 ws_heartbeat_interval).
type heartbeatFrame struct {
	Type string `json:"type"`
}

// connection wraps one upgraded WebSocket, serializing writes (the fan-out
// hub's Dispatch and this connection's own heartbeat ticker both write
// concurrently) and implementing fanout.Observer.
type connection struct {
	conn   *websocket.Conn
	logger logger.Logger

	mu     sync.Mutex
	closed bool
}

func newConnection(conn *websocket.Conn, log logger.Logger) *connection {
	return &connection{conn: conn, logger: log}
}

// Send implements fanout.Observer: it writes a progress event frame.
// Grounded on the fan-out hub's "evict on send failure" contract (§4.7) —
// any error here causes the Hub to unsubscribe this connection.
func (c *connection) Send(event domain.ProgressEvent) error {
	return c.writeJSON(event)
}

func (c *connection) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// heartbeatLoop periodically writes a heartbeat frame until done is closed
// or a write fails.
func (c *connection) heartbeatLoop(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.writeJSON(heartbeatFrame{Type: "heartbeat"}); err != nil {
				c.logger.Debug("heartbeat write failed, connection likely closed", logger.Error(err))
				return
			}
		}
	}
}

// readLoop blocks reading client frames until the connection closes,
// replying "pong" to every "ping" text frame (§6) and otherwise discarding
// unrecognized input. It also runs gorilla's control-frame pong handling so
// the connection is reaped if the client goes silent past pongWait.
func (c *connection) readLoop() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if string(payload) == clientPingFrame {
			if writeErr := c.writeRaw(serverPongFrame); writeErr != nil {
				return
			}
		}
	}
}

func (c *connection) writeRaw(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// controlPingLoop sends RFC 6455 control-frame pings at pingPeriod, the
// transport-level liveness check (distinct from the application-level
// ping/pong text frames read/written above).
func (c *connection) controlPingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}
