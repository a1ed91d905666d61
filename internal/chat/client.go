package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.

	// Inbound frames carry up to 1000 runes of content plus JSON
	// overhead. The worst legal encoding spends 12 bytes per rune
	// (surrogate-pair \uXXXX escapes), so the limit must clear ~12KB
	// or a valid message would tear the connection down instead of
	// reaching the recoverable "Message too long" path.
	maxFrameSize = 16384
)

// Client is the middleman between one websocket connection and the
// registry. It owns its Session; the registry only holds a back
// reference that Leave forgets on teardown.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	session  *Session
	registry Registry
	groupKey string
	log      *zap.SugaredLogger
}

func newClient(conn *websocket.Conn, registry Registry, groupKey string, log *zap.SugaredLogger) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		registry: registry,
		groupKey: groupKey,
		log:      log,
	}
}

// Deliver queues a broadcast frame without blocking. A full queue means
// the peer is slow or dead; the frame is dropped and the write pump's
// deadline will tear the connection down soon enough.
func (c *Client) Deliver(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// sendDirect marshals and queues a frame for this connection only.
func (c *Client) sendDirect(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		c.log.Errorw("direct frame marshal failed", "err", err)
		return
	}
	if !c.Deliver(frame) {
		c.log.Warnw("direct frame dropped, send queue full", "group", c.groupKey)
	}
}

// readPump pumps inbound frames through the session, one at a time.
// The deferred Leave is the single unconditional cleanup path: it runs
// on client close, transport error, and everything in between.
func (c *Client) readPump() {
	defer func() {
		c.registry.Leave(c.groupKey, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debugw("websocket closed", "group", c.groupKey, "err", err)
			}
			break
		}
		c.session.HandleFrame(context.Background(), raw)
	}
}

// writePump pumps queued frames to the websocket connection and keeps
// the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
