package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-sync/internal/models"
)

var tracer = otel.Tracer("chat-sync/service")

// PointerStore keeps the latest message id per conversation pair.
type PointerStore interface {
	Upsert(ctx context.Context, a, b string, messageID, created int64) (int, error)
	Pointers(ctx context.Context, identity string) (map[string]int64, error)
}

// ConnectionLookup finds the live connection of an identity.
type ConnectionLookup interface {
	LookupConnection(ctx context.Context, identity string) (string, bool, error)
}

// Pusher delivers frames to live connections. Both calls are fire-and-forget.
type Pusher interface {
	Push(handle string, frame models.OutboundFrame) bool
	Broadcast(groupID int64, frame models.OutboundFrame) int
}

// ChannelRevoker drops the live group channel subscriptions of an identity.
type ChannelRevoker interface {
	RevokeMember(groupID int64, identity string) int
}

// MessageEvents receives domain events after persistence.
type MessageEvents interface {
	MessageStored(ctx context.Context, msg models.Message)
	MessagesRead(ctx context.Context, recipient string, messageID int64, counterpart string, count int64)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	// timeGapSeconds is the silence after which a history entry shows its time again.
	timeGapSeconds = 300
)

func historyLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
