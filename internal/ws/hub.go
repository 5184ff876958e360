package ws

import (
	"sync"

	"github.com/sirupsen/logrus"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// Hub maintains the live connections of this node and their group channel subscriptions.
type Hub struct {
	clients  map[string]*Client
	channels map[int64]map[string]*Client
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		channels: make(map[int64]map[string]*Client),
		logger:   logger,
	}
}

// AddClient registers a live connection under its handle.
func (h *Hub) AddClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.handle] = c
}

// RemoveClient drops the connection and its channel subscriptions and closes its send queue.
// It reports whether the handle was known.
func (h *Hub) RemoveClient(handle string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[handle]
	if !ok {
		return false
	}
	delete(h.clients, handle)
	for groupID := range c.channels {
		h.unsubscribe(groupID, handle)
	}
	close(c.send)
	return true
}

// Kick disconnects a superseded connection held by this node.
func (h *Hub) Kick(handle string) bool {
	if !h.RemoveClient(handle) {
		return false
	}
	h.logger.WithField("conn_id", handle).Info("superseded connection kicked")
	observability.IncWSEvent("ws_superseded")
	return true
}

func (h *Hub) HasClient(handle string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[handle]
	return ok
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// JoinChannel subscribes a live connection to a group's broadcast channel.
func (h *Hub) JoinChannel(handle string, groupID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[handle]
	if !ok {
		return false
	}
	if _, ok := h.channels[groupID]; !ok {
		h.channels[groupID] = make(map[string]*Client)
	}
	h.channels[groupID][handle] = c
	c.channels[groupID] = struct{}{}
	return true
}

// LeaveChannel unsubscribes a connection. Unknown handles and groups are ignored.
func (h *Hub) LeaveChannel(handle string, groupID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[handle]; ok {
		delete(c.channels, groupID)
	}
	h.unsubscribe(groupID, handle)
}

// DropChannels unsubscribes a connection from every group channel and returns how many it left.
func (h *Hub) DropChannels(handle string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[handle]
	if !ok {
		return 0
	}
	n := len(c.channels)
	for groupID := range c.channels {
		h.unsubscribe(groupID, handle)
	}
	c.channels = make(map[int64]struct{})
	return n
}

// RevokeMember unsubscribes every local connection of identity from groupID.
func (h *Hub) RevokeMember(groupID int64, identity string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	revoked := 0
	for handle, c := range h.channels[groupID] {
		if c.Identity() != identity {
			continue
		}
		delete(c.channels, groupID)
		h.unsubscribe(groupID, handle)
		revoked++
	}
	if revoked > 0 {
		h.logger.WithFields(logrus.Fields{"identity": identity, "group_id": groupID}).Info("channel subscription revoked")
	}
	return revoked
}

func (h *Hub) unsubscribe(groupID int64, handle string) {
	if subs, ok := h.channels[groupID]; ok {
		delete(subs, handle)
		if len(subs) == 0 {
			delete(h.channels, groupID)
		}
	}
}

// Subscribers returns how many connections on this node listen to groupID.
func (h *Hub) Subscribers(groupID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[groupID])
}

// Push queues frame for one connection without blocking. It returns false when the handle
// is not held here or its queue is full.
func (h *Hub) Push(handle string, frame models.OutboundFrame) bool {
	payload, err := encodeFrame(frame)
	if err != nil {
		h.logger.WithError(err).WithField("event", frame.Event).Error("encode frame failed")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[handle]
	if !ok {
		return false
	}
	return h.enqueue(c, payload)
}

// Broadcast queues frame for every subscriber of groupID and returns how many accepted it.
// A slow subscriber never blocks the others.
func (h *Hub) Broadcast(groupID int64, frame models.OutboundFrame) int {
	payload, err := encodeFrame(frame)
	if err != nil {
		h.logger.WithError(err).WithField("event", frame.Event).Error("encode frame failed")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, c := range h.channels[groupID] {
		if h.enqueue(c, payload) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) enqueue(c *Client, payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		h.logger.WithField("conn_id", c.handle).Warn("send queue full, dropping frame")
		observability.IncWSEvent("ws_dropped")
		return false
	}
}
