package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/logging"
	"chat-sync/internal/middleware"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/telemetry"
)

func setupGroupRouter(handler *GroupHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.IdentityKey, "bob")
		c.Next()
	})
	r.GET("/groups", handler.ListGroups)
	r.POST("/groups", handler.CreateGroup)
	r.GET("/groups/:group_id/messages", handler.GetGroupMessages)
	r.POST("/groups/:group_id/messages", handler.PostGroupMessage)
	r.POST("/groups/:group_id/watermark", handler.UpdateWatermark)
	r.GET("/groups/:group_id/unread", handler.GetUnread)
	r.POST("/groups/:group_id/leave", handler.LeaveGroup)
	return r
}

func TestCreateGroupEmitsAudit(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-sync", "test", logging.Discard())
	router := setupGroupRouter(NewGroupHandler(groups, new(mocks.DeliveryServiceMock), audit))

	groups.On("CreateGroup", mock.Anything, "bob", "Climbers", "", []string{"alice"}).
		Return(models.Group{ID: 4, Name: "Climbers", Owner: "bob"}, nil).Once()
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Text == "Group created" && env.Identity != nil && *env.Identity == "bob"
	})).Return(nil).Once()

	rec := serve(router, http.MethodPost, "/groups", []byte(`{"name":"Climbers","members":["alice"]}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	groups.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestListGroups(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	router := setupGroupRouter(NewGroupHandler(groups, new(mocks.DeliveryServiceMock), nil))

	groups.On("ListGroups", mock.Anything, "bob").Return([]models.Membership{{GroupID: 4, Name: "Climbers", Role: models.RoleMember}}, nil).Once()

	rec := serve(router, http.MethodGet, "/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Climbers"`)
}

func TestGetGroupMessagesForbidden(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	router := setupGroupRouter(NewGroupHandler(groups, new(mocks.DeliveryServiceMock), nil))

	groups.On("GroupHistory", mock.Anything, "bob", int64(4), 0).Return(nil, apperrors.NewForbiddenError("not a member of this group")).Once()

	rec := serve(router, http.MethodGet, "/groups/4/messages", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/groups/zero/messages", nil).Code)
}

func TestPostGroupMessageChecksMembership(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	delivery := new(mocks.DeliveryServiceMock)
	router := setupGroupRouter(NewGroupHandler(groups, delivery, nil))

	groups.On("IsMember", mock.Anything, int64(4), "bob").Return(false, nil).Once()
	rec := serve(router, http.MethodPost, "/groups/4/messages", []byte(`{"content":"hey"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	delivery.AssertNotCalled(t, "SendGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	groups.On("IsMember", mock.Anything, int64(5), "bob").Return(true, nil).Once()
	delivery.On("SendGroup", mock.Anything, "bob", int64(5), "hey", models.ContentType(0)).Return(int64(77), nil).Once()
	rec = serve(router, http.MethodPost, "/groups/5/messages", []byte(`{"content":"hey"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"message_id":77}`, rec.Body.String())
}

func TestUpdateWatermarkWithAndWithoutBody(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	router := setupGroupRouter(NewGroupHandler(groups, new(mocks.DeliveryServiceMock), nil))

	groups.On("UpdateWatermark", mock.Anything, "bob", int64(4), int64(0)).Return(int64(1700000000), nil).Once()
	groups.On("UpdateWatermark", mock.Anything, "bob", int64(4), int64(1600000000)).Return(int64(1700000000), nil).Once()

	rec := serve(router, http.MethodPost, "/groups/4/watermark", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rec_time":1700000000}`, rec.Body.String())

	rec = serve(router, http.MethodPost, "/groups/4/watermark", []byte(`{"timestamp":1600000000}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rec_time":1700000000}`, rec.Body.String())
	groups.AssertExpectations(t)
}

func TestGetUnreadNotMember(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	router := setupGroupRouter(NewGroupHandler(groups, new(mocks.DeliveryServiceMock), nil))

	groups.On("UnreadCount", mock.Anything, "bob", int64(4)).Return(int64(0), apperrors.NewNotFoundError("group member")).Once()
	groups.On("UnreadCount", mock.Anything, "bob", int64(5)).Return(int64(2), nil).Once()

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/groups/4/unread", nil).Code)
	rec := serve(router, http.MethodGet, "/groups/5/unread", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread":2}`, rec.Body.String())
}

func TestLeaveGroup(t *testing.T) {
	groups := new(mocks.GroupServiceMock)
	router := setupGroupRouter(NewGroupHandler(groups, new(mocks.DeliveryServiceMock), nil))

	groups.On("LeaveGroup", mock.Anything, "bob", int64(4)).Return(nil).Once()

	rec := serve(router, http.MethodPost, "/groups/4/leave", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	groups.AssertExpectations(t)
}
