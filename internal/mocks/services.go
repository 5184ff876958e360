package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/models"
)

type DeliveryServiceMock struct {
	mock.Mock
}

func (m *DeliveryServiceMock) SendPrivate(ctx context.Context, sender, recipient, content string, contentType models.ContentType) (int64, error) {
	args := m.Called(ctx, sender, recipient, content, contentType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *DeliveryServiceMock) SendGroup(ctx context.Context, sender string, groupID int64, content string, contentType models.ContentType) (int64, error) {
	args := m.Called(ctx, sender, groupID, content, contentType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *DeliveryServiceMock) MarkRead(ctx context.Context, recipient string, messageID int64) error {
	args := m.Called(ctx, recipient, messageID)
	return args.Error(0)
}

func (m *DeliveryServiceMock) MarkAllRead(ctx context.Context, recipient, counterpart string) (int64, error) {
	args := m.Called(ctx, recipient, counterpart)
	return args.Get(0).(int64), args.Error(1)
}

type ConversationServiceMock struct {
	mock.Mock
}

func (m *ConversationServiceMock) BuildConversationList(ctx context.Context, identity string) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, identity)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationServiceMock) PrivateHistory(ctx context.Context, identity, counterpart string, limit int) ([]models.HistoryEntry, error) {
	args := m.Called(ctx, identity, counterpart, limit)
	var entries []models.HistoryEntry
	if val := args.Get(0); val != nil {
		entries = val.([]models.HistoryEntry)
	}
	return entries, args.Error(1)
}

type GroupServiceMock struct {
	mock.Mock
}

func (m *GroupServiceMock) CreateGroup(ctx context.Context, owner, name, avatarURL string, members []string) (models.Group, error) {
	args := m.Called(ctx, owner, name, avatarURL, members)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupServiceMock) ListGroups(ctx context.Context, identity string) ([]models.Membership, error) {
	args := m.Called(ctx, identity)
	var list []models.Membership
	if val := args.Get(0); val != nil {
		list = val.([]models.Membership)
	}
	return list, args.Error(1)
}

func (m *GroupServiceMock) IsMember(ctx context.Context, groupID int64, member string) (bool, error) {
	args := m.Called(ctx, groupID, member)
	return args.Bool(0), args.Error(1)
}

func (m *GroupServiceMock) GroupHistory(ctx context.Context, identity string, groupID int64, limit int) ([]models.HistoryEntry, error) {
	args := m.Called(ctx, identity, groupID, limit)
	var entries []models.HistoryEntry
	if val := args.Get(0); val != nil {
		entries = val.([]models.HistoryEntry)
	}
	return entries, args.Error(1)
}

func (m *GroupServiceMock) UpdateWatermark(ctx context.Context, member string, groupID int64, timestamp int64) (int64, error) {
	args := m.Called(ctx, member, groupID, timestamp)
	return args.Get(0).(int64), args.Error(1)
}

func (m *GroupServiceMock) UnreadCount(ctx context.Context, member string, groupID int64) (int64, error) {
	args := m.Called(ctx, member, groupID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *GroupServiceMock) LeaveGroup(ctx context.Context, member string, groupID int64) error {
	args := m.Called(ctx, member, groupID)
	return args.Error(0)
}
