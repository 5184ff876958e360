package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"chat-sync/internal/observability"
)

const (
	sendBuffer     = 64
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// connMeta is fixed at upgrade time and only used for logs.
type connMeta struct {
	client      observability.ClientMeta
	traceID     string
	connectedAt time.Time
}

func (m connMeta) fields() logrus.Fields {
	return logrus.Fields{
		"device_id":  m.client.DeviceID,
		"ip":         m.client.IP,
		"request_id": m.client.RequestID,
		"trace_id":   m.traceID,
	}
}

// Client is one live websocket connection. Its handle never changes; the identity behind it
// can change on reconnect.
type Client struct {
	handle string
	conn   *websocket.Conn
	send   chan []byte
	meta   connMeta

	mu       sync.RWMutex
	identity string

	// channels is guarded by the hub's lock.
	channels map[int64]struct{}
}

func newClient(conn *websocket.Conn, handle, identity string, meta connMeta) *Client {
	return &Client{
		handle:   handle,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		meta:     meta,
		identity: identity,
		channels: make(map[int64]struct{}),
	}
}

func (c *Client) Handle() string {
	return c.handle
}

func (c *Client) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Client) setIdentity(identity string) {
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()
}

// writePump is the only writer on the connection. It exits when send is closed or a write fails.
func (c *Client) writePump(writeWait time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
