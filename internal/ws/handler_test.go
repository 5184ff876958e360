package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/logging"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/registry"
)

type wsFixture struct {
	hub      *Hub
	registry *mocks.RegistryMock
	delivery *mocks.DeliveryServiceMock
	groups   *mocks.GroupServiceMock
	server   *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	return newWSFixtureWithKicker(t, nil)
}

func newWSFixtureWithKicker(t *testing.T, kicker Kicker) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &wsFixture{
		hub:      NewHub(logging.Discard()),
		registry: new(mocks.RegistryMock),
		delivery: new(mocks.DeliveryServiceMock),
		groups:   new(mocks.GroupServiceMock),
	}
	handler := NewHandler(HandlerDeps{
		Hub:        f.hub,
		Kicker:     kicker,
		Registry:   f.registry,
		Delivery:   f.delivery,
		Membership: f.groups,
		OpTimeout:  time.Second,
		WriteWait:  time.Second,
		Logger:     logging.Discard(),
	})

	router := gin.New()
	router.GET("/ws", handler.Handle)
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) dial(t *testing.T, code string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?code=" + code
	return websocket.DefaultDialer.Dial(url, nil)
}

func readFrame(t *testing.T, conn *websocket.Conn) models.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame models.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.Frame{Event: event, Data: raw}))
}

func connect(t *testing.T, f *wsFixture, code, identity string) (*websocket.Conn, string) {
	t.Helper()
	f.registry.On("Register", mock.Anything, code, mock.AnythingOfType("string")).
		Return(registry.Registration{Identity: identity}, nil).Once()

	conn, _, err := f.dial(t, code)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	frame := readFrame(t, conn)
	require.Equal(t, models.EventConnected, frame.Event)
	var connected models.Connected
	require.NoError(t, json.Unmarshal(frame.Data, &connected))
	assert.Equal(t, identity, connected.Identity)
	require.NotEmpty(t, connected.Handle)
	return conn, connected.Handle
}

func TestHandshakeRequiresCode(t *testing.T) {
	f := newWSFixture(t)
	_, resp, err := f.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandshakeRejectsFailedExchange(t *testing.T) {
	f := newWSFixture(t)
	f.registry.On("Register", mock.Anything, "bad", mock.AnythingOfType("string")).
		Return(nil, apperrors.NewIdentityResolutionError(assert.AnError)).Once()

	_, resp, err := f.dial(t, "bad")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendPrivateAcksWithMessageID(t *testing.T) {
	f := newWSFixture(t)
	f.registry.On("Refresh", mock.Anything, mock.Anything).Return(nil)
	f.registry.On("Deregister", mock.Anything, mock.Anything).Return(nil).Maybe()
	conn, _ := connect(t, f, "code-a", "alice")

	f.delivery.On("SendPrivate", mock.Anything, "alice", "bob", "hi", models.ContentText).Return(int64(42), nil).Once()
	writeFrame(t, conn, models.CommandSendPrivate, models.SendPrivateCommand{Recipient: "bob", Content: "hi", Type: models.ContentText})

	frame := readFrame(t, conn)
	require.Equal(t, models.EventAck, frame.Event)
	var ack models.Ack
	require.NoError(t, json.Unmarshal(frame.Data, &ack))
	assert.Equal(t, models.CommandSendPrivate, ack.Event)
	assert.Equal(t, int64(42), ack.MessageID)
	f.delivery.AssertExpectations(t)
}

func TestSendPrivateValidationErrorIsReported(t *testing.T) {
	f := newWSFixture(t)
	f.registry.On("Refresh", mock.Anything, mock.Anything).Return(nil)
	f.registry.On("Deregister", mock.Anything, mock.Anything).Return(nil).Maybe()
	conn, _ := connect(t, f, "code-a", "alice")

	f.delivery.On("SendPrivate", mock.Anything, "alice", "", "hi", models.ContentText).
		Return(int64(0), apperrors.NewValidationError("recipient is required")).Once()
	writeFrame(t, conn, models.CommandSendPrivate, models.SendPrivateCommand{Content: "hi", Type: models.ContentText})

	frame := readFrame(t, conn)
	require.Equal(t, models.EventError, frame.Event)
	var e models.ErrorEvent
	require.NoError(t, json.Unmarshal(frame.Data, &e))
	assert.Equal(t, string(apperrors.ErrCodeValidation), e.Code)
	assert.Equal(t, "recipient is required", e.Message)
}

func TestJoinChannelRequiresMembership(t *testing.T) {
	f := newWSFixture(t)
	f.registry.On("Refresh", mock.Anything, mock.Anything).Return(nil)
	f.registry.On("Deregister", mock.Anything, mock.Anything).Return(nil).Maybe()
	conn, handle := connect(t, f, "code-a", "alice")

	f.groups.On("IsMember", mock.Anything, int64(9), "alice").Return(false, nil).Once()
	writeFrame(t, conn, models.CommandJoinChannel, models.ChannelCommand{Group: 9})
	frame := readFrame(t, conn)
	require.Equal(t, models.EventError, frame.Event)
	assert.Equal(t, 0, f.hub.Subscribers(9))

	f.groups.On("IsMember", mock.Anything, int64(5), "alice").Return(true, nil).Once()
	writeFrame(t, conn, models.CommandJoinChannel, models.ChannelCommand{Group: 5})
	frame = readFrame(t, conn)
	require.Equal(t, models.EventAck, frame.Event)
	assert.Equal(t, 1, f.hub.Subscribers(5))

	n := f.hub.Broadcast(5, models.OutboundFrame{Event: models.EventGroupMessageReceived, Data: models.GroupMessageReceived{Group: 5, Content: "yo"}})
	assert.Equal(t, 1, n)
	frame = readFrame(t, conn)
	assert.Equal(t, models.EventGroupMessageReceived, frame.Event)

	writeFrame(t, conn, models.CommandLeaveChannel, models.ChannelCommand{Group: 5})
	frame = readFrame(t, conn)
	require.Equal(t, models.EventAck, frame.Event)
	assert.Equal(t, 0, f.hub.Subscribers(5))
	assert.True(t, f.hub.HasClient(handle))
}

func TestUnknownEventIsRejected(t *testing.T) {
	f := newWSFixture(t)
	f.registry.On("Refresh", mock.Anything, mock.Anything).Return(nil)
	f.registry.On("Deregister", mock.Anything, mock.Anything).Return(nil).Maybe()
	conn, _ := connect(t, f, "code-a", "alice")

	writeFrame(t, conn, "dance", map[string]string{})
	frame := readFrame(t, conn)
	require.Equal(t, models.EventError, frame.Event)
}

func TestReconnectRebindsSameHandle(t *testing.T) {
	f := newWSFixture(t)
	f.registry.On("Deregister", mock.Anything, mock.Anything).Return(nil)
	conn, handle := connect(t, f, "code-a", "alice")

	f.registry.On("Register", mock.Anything, "code-b", handle).Return(registry.Registration{Identity: "alice"}, nil).Once()
	writeFrame(t, conn, models.CommandReconnect, models.ReconnectCommand{AuthCode: "code-b"})

	frame := readFrame(t, conn)
	require.Equal(t, models.EventConnected, frame.Event)
	var connected models.Connected
	require.NoError(t, json.Unmarshal(frame.Data, &connected))
	assert.Equal(t, handle, connected.Handle)
	f.registry.AssertCalled(t, "Deregister", mock.Anything, handle)
	f.registry.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestSupersededConnectionIsClosed(t *testing.T) {
	f := newWSFixture(t)
	f.registry.On("Deregister", mock.Anything, mock.Anything).Return(nil).Maybe()
	first, firstHandle := connect(t, f, "code-a", "alice")

	f.registry.On("Register", mock.Anything, "code-a2", mock.AnythingOfType("string")).
		Return(registry.Registration{Identity: "alice", Superseded: firstHandle}, nil).Once()
	second, _, err := f.dial(t, "code-a2")
	require.NoError(t, err)
	defer second.Close()
	require.Equal(t, models.EventConnected, readFrame(t, second).Event)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = first.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	assert.False(t, f.hub.HasClient(firstHandle))
}

func TestErrorFrameHidesStorageDetails(t *testing.T) {
	frame := errorFrame(models.CommandSendPrivate, apperrors.NewStorageError(assert.AnError, "insert private message"))
	data := frame.Data.(models.ErrorEvent)
	assert.Equal(t, string(apperrors.ErrCodeStorage), data.Code)
	assert.Equal(t, "internal error", data.Message)

	frame = errorFrame("", assert.AnError)
	assert.Equal(t, string(apperrors.ErrCodeInternal), frame.Data.(models.ErrorEvent).Code)
}

func joinChannel(t *testing.T, f *wsFixture, conn *websocket.Conn, identity string, group int64) {
	t.Helper()
	f.groups.On("IsMember", mock.Anything, group, identity).Return(true, nil).Once()
	writeFrame(t, conn, models.CommandJoinChannel, models.ChannelCommand{Group: group})
	require.Equal(t, models.EventAck, readFrame(t, conn).Event)
}

func TestReconnectAsAnotherIdentityDropsChannels(t *testing.T) {
	f := newWSFixture(t)
	f.registry.On("Refresh", mock.Anything, mock.Anything).Return(nil)
	f.registry.On("Deregister", mock.Anything, mock.Anything).Return(nil)
	conn, handle := connect(t, f, "code-a", "alice")
	joinChannel(t, f, conn, "alice", 7)
	require.Equal(t, 1, f.hub.Subscribers(7))

	f.registry.On("Register", mock.Anything, "code-m", handle).Return(registry.Registration{Identity: "mallory"}, nil).Once()
	writeFrame(t, conn, models.CommandReconnect, models.ReconnectCommand{AuthCode: "code-m"})
	require.Equal(t, models.EventConnected, readFrame(t, conn).Event)

	assert.Equal(t, 0, f.hub.Subscribers(7))
	assert.Equal(t, 0, f.hub.Broadcast(7, models.OutboundFrame{Event: models.EventGroupMessageReceived, Data: models.GroupMessageReceived{Group: 7}}))
	assert.True(t, f.hub.HasClient(handle))
}

func TestReconnectAsSameIdentityKeepsChannels(t *testing.T) {
	f := newWSFixture(t)
	f.registry.On("Refresh", mock.Anything, mock.Anything).Return(nil)
	f.registry.On("Deregister", mock.Anything, mock.Anything).Return(nil)
	conn, handle := connect(t, f, "code-a", "alice")
	joinChannel(t, f, conn, "alice", 7)

	f.registry.On("Register", mock.Anything, "code-a2", handle).Return(registry.Registration{Identity: "alice"}, nil).Once()
	writeFrame(t, conn, models.CommandReconnect, models.ReconnectCommand{AuthCode: "code-a2"})
	require.Equal(t, models.EventConnected, readFrame(t, conn).Event)

	assert.Equal(t, 1, f.hub.Subscribers(7))
}

func TestFailedReconnectClosesConnection(t *testing.T) {
	f := newWSFixture(t)
	f.registry.On("Refresh", mock.Anything, mock.Anything).Return(nil)
	f.registry.On("Deregister", mock.Anything, mock.Anything).Return(nil)
	conn, handle := connect(t, f, "code-a", "alice")
	joinChannel(t, f, conn, "alice", 7)

	f.registry.On("Register", mock.Anything, "bad-code", handle).
		Return(nil, apperrors.NewIdentityResolutionError(assert.AnError)).Once()
	writeFrame(t, conn, models.CommandReconnect, models.ReconnectCommand{AuthCode: "bad-code"})

	frame := readFrame(t, conn)
	require.Equal(t, models.EventError, frame.Event)
	var e models.ErrorEvent
	require.NoError(t, json.Unmarshal(frame.Data, &e))
	assert.Equal(t, models.CommandReconnect, e.Event)
	assert.Equal(t, string(apperrors.ErrCodeIdentityResolution), e.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	assert.False(t, f.hub.HasClient(handle))
	assert.Equal(t, 0, f.hub.Subscribers(7))
}

func TestMissingReconnectCodeKeepsConnection(t *testing.T) {
	f := newWSFixture(t)
	f.registry.On("Refresh", mock.Anything, mock.Anything).Return(nil)
	f.registry.On("Deregister", mock.Anything, mock.Anything).Return(nil).Maybe()
	conn, handle := connect(t, f, "code-a", "alice")

	writeFrame(t, conn, models.CommandReconnect, models.ReconnectCommand{})
	require.Equal(t, models.EventError, readFrame(t, conn).Event)
	assert.True(t, f.hub.HasClient(handle))
	f.registry.AssertNotCalled(t, "Deregister", mock.Anything, handle)
}

func TestSupersededHandleGoesThroughKicker(t *testing.T) {
	kicker := new(mocks.NodeHubMock)
	f := newWSFixtureWithKicker(t, kicker)
	f.registry.On("Deregister", mock.Anything, mock.Anything).Return(nil).Maybe()

	kicker.On("Kick", "handle-on-other-node").Return(true).Once()
	f.registry.On("Register", mock.Anything, "code-a", mock.AnythingOfType("string")).
		Return(registry.Registration{Identity: "alice", Superseded: "handle-on-other-node"}, nil).Once()

	conn, _, err := f.dial(t, "code-a")
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, models.EventConnected, readFrame(t, conn).Event)
	kicker.AssertExpectations(t)
}
