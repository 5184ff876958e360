package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/logging"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/telemetry"
)

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-sync", "test", logging.Discard())
	identity := "alice"

	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.EventType == "audit_log" && env.RequestID == "req-1" && env.Identity != nil && *env.Identity == "alice" && env.Payload.Text == "hello"
	})).Return(nil).Once()

	emitter.Emit(context.Background(), "INFO", "hello", "req-1", &identity)
	publisher.AssertExpectations(t)
}

func TestNilAuditEmitterIsSafe(t *testing.T) {
	var emitter *telemetry.AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "x", "", nil)
	})
}

func TestMessageStoredRoutesByKind(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewEventEmitter(publisher, "chat-sync", "test", "node-a", logging.Discard())

	bob := "bob"
	group := int64(9)
	publisher.On("Publish", mock.Anything, telemetry.RoutingPrivateMessage, mock.MatchedBy(func(env telemetry.MessageEnvelope) bool {
		return env.MessageID == 1 && env.Recipient == "bob" && env.GroupID == 0
	})).Return(nil).Once()
	publisher.On("Publish", mock.Anything, telemetry.RoutingGroupMessage, mock.MatchedBy(func(env telemetry.MessageEnvelope) bool {
		return env.MessageID == 2 && env.GroupID == 9 && env.EventType == "group_message_stored"
	})).Return(errors.New("broker down")).Once()

	emitter.MessageStored(context.Background(), models.Message{ID: 1, Sender: "alice", Recipient: &bob})
	emitter.MessageStored(context.Background(), models.Message{ID: 2, Sender: "alice", GroupID: &group})
	publisher.AssertExpectations(t)
}

func TestWSEventCarriesNode(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewEventEmitter(publisher, "chat-sync", "test", "node-a", logging.Discard())

	publisher.On("Publish", mock.Anything, telemetry.RoutingWSEvent, mock.MatchedBy(func(env telemetry.WSEnvelope) bool {
		return env.EventType == "ws_connected" && env.Node == "node-a" && env.ConnID == "h1"
	})).Return(nil).Once()

	emitter.WSEvent(context.Background(), "ws_connected", "alice", "h1")
	publisher.AssertExpectations(t)
}

func TestMessagesReadEnvelopes(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewEventEmitter(publisher, "chat-sync", "test", "node-a", logging.Discard())

	publisher.On("Publish", mock.Anything, telemetry.RoutingMessageRead, mock.Anything).Return(nil).Twice()

	emitter.MessagesRead(context.Background(), "bob", 7, "", 1)
	emitter.MessagesRead(context.Background(), "bob", 0, "alice", 3)

	events := publisher.Published(telemetry.RoutingMessageRead)
	require.Len(t, events, 2)

	single := events[0].(telemetry.ReadEnvelope)
	assert.Equal(t, int64(7), single.MessageID)
	assert.Equal(t, int64(1), single.Count)

	bulk := events[1].(telemetry.ReadEnvelope)
	assert.Equal(t, "alice", bulk.Counterpart)
	assert.Equal(t, int64(3), bulk.Count)
	assert.Equal(t, "messages_read", bulk.EventType)
}
