package telemetry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"chat-sync/internal/models"
)

// Routing keys of domain events.
const (
	RoutingPrivateMessage = "message.private"
	RoutingGroupMessage   = "message.group"
	RoutingMessageRead    = "message.read"
	RoutingWSEvent        = "ws.event"
)

// MessageEnvelope announces a persisted message.
type MessageEnvelope struct {
	SchemaVersion int                `json:"schema_version"`
	EventType     string             `json:"event_type"`
	OccurredAt    string             `json:"occurred_at"`
	Service       string             `json:"service"`
	Environment   string             `json:"environment"`
	MessageID     int64              `json:"message_id"`
	Sender        string             `json:"sender"`
	Recipient     string             `json:"recipient,omitempty"`
	GroupID       int64              `json:"group_id,omitempty"`
	ContentType   models.ContentType `json:"content_type"`
	Created       int64              `json:"created"`
}

// ReadEnvelope announces receipts moving to read.
type ReadEnvelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	Recipient     string `json:"recipient"`
	MessageID     int64  `json:"message_id,omitempty"`
	Counterpart   string `json:"counterpart,omitempty"`
	Count         int64  `json:"count"`
}

// WSEnvelope announces a websocket lifecycle change.
type WSEnvelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	Identity      string `json:"identity"`
	ConnID        string `json:"conn_id"`
	Node          string `json:"node"`
}

// EventEmitter publishes domain events. Failures are logged and dropped.
type EventEmitter struct {
	publisher   Publisher
	service     string
	environment string
	node        string
	logger      *logrus.Logger
}

func NewEventEmitter(publisher Publisher, service, environment, node string, logger *logrus.Logger) *EventEmitter {
	return &EventEmitter{
		publisher:   publisher,
		service:     service,
		environment: environment,
		node:        node,
		logger:      logger,
	}
}

func (e *EventEmitter) MessageStored(ctx context.Context, msg models.Message) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := MessageEnvelope{
		SchemaVersion: 1,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		MessageID:     msg.ID,
		Sender:        msg.Sender,
		ContentType:   msg.Type,
		Created:       msg.Created,
	}
	routingKey := RoutingPrivateMessage
	envelope.EventType = "private_message_stored"
	if msg.GroupID != nil {
		routingKey = RoutingGroupMessage
		envelope.EventType = "group_message_stored"
		envelope.GroupID = *msg.GroupID
	}
	if msg.Recipient != nil {
		envelope.Recipient = *msg.Recipient
	}

	e.publish(ctx, routingKey, envelope)
}

func (e *EventEmitter) MessagesRead(ctx context.Context, recipient string, messageID int64, counterpart string, count int64) {
	if e == nil || e.publisher == nil {
		return
	}

	e.publish(ctx, RoutingMessageRead, ReadEnvelope{
		SchemaVersion: 1,
		EventType:     "messages_read",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		Recipient:     recipient,
		MessageID:     messageID,
		Counterpart:   counterpart,
		Count:         count,
	})
}

func (e *EventEmitter) WSEvent(ctx context.Context, eventType, identity, connID string) {
	if e == nil || e.publisher == nil {
		return
	}

	e.publish(ctx, RoutingWSEvent, WSEnvelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		Identity:      identity,
		ConnID:        connID,
		Node:          e.node,
	})
}

func (e *EventEmitter) publish(ctx context.Context, routingKey string, envelope any) {
	if err := e.publisher.Publish(ctx, routingKey, envelope); err != nil {
		e.logger.WithError(err).WithField("routing_key", routingKey).Warn("event publish failed")
	}
}
