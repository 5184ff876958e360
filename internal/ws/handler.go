package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/registry"
)

// Registry is the connection registry as seen by the websocket layer.
type Registry interface {
	Register(ctx context.Context, authCode, handle string) (registry.Registration, error)
	Deregister(ctx context.Context, handle string) error
	Refresh(ctx context.Context, handle string) error
}

// Delivery sends and acknowledges messages.
type Delivery interface {
	SendPrivate(ctx context.Context, sender, recipient, content string, contentType models.ContentType) (int64, error)
	SendGroup(ctx context.Context, sender string, groupID int64, content string, contentType models.ContentType) (int64, error)
	MarkRead(ctx context.Context, recipient string, messageID int64) error
}

// Membership authorizes channel subscription and group sends.
type Membership interface {
	IsMember(ctx context.Context, groupID int64, member string) (bool, error)
}

// Events receives websocket lifecycle events.
type Events interface {
	WSEvent(ctx context.Context, eventType, identity, connID string)
}

// Kicker closes a superseded connection wherever it is held.
type Kicker interface {
	Kick(handle string) bool
}

// HandlerDeps bundles the collaborators of Handler. Kicker defaults to Hub.
type HandlerDeps struct {
	Hub        *Hub
	Kicker     Kicker
	Registry   Registry
	Delivery   Delivery
	Membership Membership
	Events     Events
	OpTimeout  time.Duration
	WriteWait  time.Duration
	Logger     *logrus.Logger
}

// Handler upgrades connections and dispatches inbound commands.
type Handler struct {
	hub        *Hub
	kicker     Kicker
	registry   Registry
	delivery   Delivery
	membership Membership
	events     Events
	opTimeout  time.Duration
	writeWait  time.Duration
	logger     *logrus.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	kicker := deps.Kicker
	if kicker == nil {
		kicker = deps.Hub
	}
	return &Handler{
		hub:        deps.Hub,
		kicker:     kicker,
		registry:   deps.Registry,
		delivery:   deps.Delivery,
		membership: deps.Membership,
		events:     deps.Events,
		opTimeout:  deps.OpTimeout,
		writeWait:  deps.WriteWait,
		logger:     deps.Logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle registers the caller's identity under a fresh handle and upgrades the connection.
func (h *Handler) Handle(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	ctx, span := otel.Tracer("chat-sync/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	handle := newConnID()
	reg, err := h.registry.Register(ctx, code, handle)
	if err != nil {
		span.RecordError(err)
		h.logger.WithError(err).Warn("websocket register failed")
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": "registration failed"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).WithField("conn_id", handle).Warn("websocket upgrade failed")
		h.deregister(handle)
		return
	}

	meta := connMeta{
		client:      observability.ClientMetaFromRequest(c.Request),
		traceID:     span.SpanContext().TraceID().String(),
		connectedAt: time.Now(),
	}
	client := newClient(conn, handle, reg.Identity, meta)
	if reg.Superseded != "" {
		h.kicker.Kick(reg.Superseded)
	}
	h.hub.AddClient(client)
	go client.writePump(h.writeWait)

	h.hub.Push(handle, connectedFrame(reg.Identity, handle))

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.emit("ws_connected", reg.Identity, handle)
	h.logger.WithFields(meta.fields()).WithFields(logrus.Fields{"identity": reg.Identity, "conn_id": handle}).Info("websocket connected")

	go h.readLoop(client)
}

func (h *Handler) readLoop(client *Client) {
	handle := client.Handle()
	defer func() {
		h.hub.RemoveClient(handle)
		h.deregister(handle)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.emit("ws_disconnected", client.Identity(), handle)
		h.logger.WithFields(logrus.Fields{
			"identity":    client.Identity(),
			"conn_id":     handle,
			"duration_ms": time.Since(client.meta.connectedAt).Milliseconds(),
		}).Info("websocket disconnected")
	}()

	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.logger.WithError(err).WithField("conn_id", handle).Warn("websocket read failed")
			}
			return
		}
		if !h.hub.HasClient(handle) {
			return
		}

		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reply(client, errorFrame("", apperrors.NewValidationError("malformed frame")))
			continue
		}
		h.dispatch(context.Background(), client, frame)
	}
}

func (h *Handler) dispatch(ctx context.Context, client *Client, frame models.Frame) {
	observability.IncWSEvent("cmd_" + frame.Event)
	handle := client.Handle()

	if frame.Event != models.CommandReconnect {
		if err := h.registry.Refresh(ctx, handle); err != nil {
			h.logger.WithError(err).WithField("conn_id", handle).Warn("refresh connection ttl failed")
		}
	}

	var (
		messageID int64
		err       error
	)
	switch frame.Event {
	case models.CommandSendPrivate:
		var cmd models.SendPrivateCommand
		if err = decode(frame.Data, &cmd); err == nil {
			messageID, err = h.delivery.SendPrivate(ctx, client.Identity(), cmd.Recipient, cmd.Content, cmd.Type)
		}
	case models.CommandSendGroup:
		var cmd models.SendGroupCommand
		if err = decode(frame.Data, &cmd); err == nil {
			if err = h.authorize(ctx, client.Identity(), cmd.Group); err == nil {
				messageID, err = h.delivery.SendGroup(ctx, client.Identity(), cmd.Group, cmd.Content, cmd.Type)
			}
		}
	case models.CommandMarkRead:
		var cmd models.MarkReadCommand
		if err = decode(frame.Data, &cmd); err == nil {
			err = h.delivery.MarkRead(ctx, client.Identity(), cmd.MessageID)
			messageID = cmd.MessageID
		}
	case models.CommandJoinChannel:
		var cmd models.ChannelCommand
		if err = decode(frame.Data, &cmd); err == nil {
			if err = h.authorize(ctx, client.Identity(), cmd.Group); err == nil && !h.hub.JoinChannel(handle, cmd.Group) {
				err = apperrors.NewNotFoundError("connection")
			}
		}
	case models.CommandLeaveChannel:
		var cmd models.ChannelCommand
		if err = decode(frame.Data, &cmd); err == nil {
			h.hub.LeaveChannel(handle, cmd.Group)
		}
	case models.CommandReconnect:
		var cmd models.ReconnectCommand
		if err = decode(frame.Data, &cmd); err == nil {
			err = h.reconnect(ctx, client, cmd.AuthCode)
		}
		if err == nil {
			return
		}
	default:
		err = apperrors.NewValidationError("unknown event " + frame.Event)
	}

	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{"conn_id": handle, "event": frame.Event}).Debug("command failed")
		h.reply(client, errorFrame(frame.Event, err))
		return
	}
	h.reply(client, ackFrame(frame.Event, messageID))
}

// reconnect re-binds the same handle to the identity behind authCode. Channel subscriptions
// survive only when the identity stays the same.
func (h *Handler) reconnect(ctx context.Context, client *Client, authCode string) error {
	if authCode == "" {
		return apperrors.NewValidationError("authCode is required")
	}
	handle := client.Handle()
	previous := client.Identity()
	if err := h.registry.Deregister(ctx, handle); err != nil {
		h.logger.WithError(err).WithField("conn_id", handle).Warn("deregister before reconnect failed")
	}

	reg, err := h.registry.Register(ctx, authCode, handle)
	if err != nil {
		// The handle is unbound at this point, so the connection goes too.
		h.logger.WithError(err).WithFields(logrus.Fields{"conn_id": handle, "identity": previous}).Warn("reconnect failed, closing connection")
		h.reply(client, errorFrame(models.CommandReconnect, err))
		h.hub.RemoveClient(handle)
		return nil
	}
	if reg.Identity != previous {
		if n := h.hub.DropChannels(handle); n > 0 {
			h.logger.WithFields(logrus.Fields{"conn_id": handle, "identity": reg.Identity, "channels": n}).Info("identity changed, channels dropped")
		}
	}
	client.setIdentity(reg.Identity)
	if reg.Superseded != "" && reg.Superseded != handle {
		h.kicker.Kick(reg.Superseded)
	}
	h.emit("ws_reconnected", reg.Identity, handle)
	h.reply(client, connectedFrame(reg.Identity, handle))
	return nil
}

func (h *Handler) authorize(ctx context.Context, identity string, groupID int64) error {
	if groupID <= 0 {
		return apperrors.NewValidationError("group is required")
	}
	ok, err := h.membership.IsMember(ctx, groupID, identity)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewForbiddenError("not a member of this group")
	}
	return nil
}

func (h *Handler) reply(client *Client, frame models.OutboundFrame) {
	if !h.hub.Push(client.Handle(), frame) {
		h.logger.WithFields(logrus.Fields{"conn_id": client.Handle(), "event": frame.Event}).Debug("reply dropped")
	}
}

func (h *Handler) deregister(handle string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()
	if err := h.registry.Deregister(ctx, handle); err != nil {
		h.logger.WithError(err).WithField("conn_id", handle).Warn("deregister failed")
	}
}

func (h *Handler) emit(eventType, identity, handle string) {
	if h.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()
	h.events.WSEvent(ctx, eventType, identity, handle)
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperrors.NewValidationError("missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed data")
	}
	return nil
}

func connectedFrame(identity, handle string) models.OutboundFrame {
	return models.OutboundFrame{
		Event: models.EventConnected,
		Data:  models.Connected{Identity: identity, Handle: handle},
	}
}
