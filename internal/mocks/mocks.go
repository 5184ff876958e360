package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/identity"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) WritePrivateMessage(ctx context.Context, sender, recipient, content string, contentType models.ContentType, created int64) (models.Message, error) {
	args := m.Called(ctx, sender, recipient, content, contentType, created)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) WriteGroupMessage(ctx context.Context, sender string, groupID int64, content string, contentType models.ContentType, created int64) (models.Message, error) {
	args := m.Called(ctx, sender, groupID, content, contentType, created)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, recipient string, messageID int64) error {
	args := m.Called(ctx, recipient, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkAllRead(ctx context.Context, recipient, counterpart string) (int64, error) {
	args := m.Called(ctx, recipient, counterpart)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) GetMessages(ctx context.Context, ids []int64) ([]models.Message, error) {
	args := m.Called(ctx, ids)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) PrivateUnreadCounts(ctx context.Context, recipient string) (map[string]int64, error) {
	args := m.Called(ctx, recipient)
	var counts map[string]int64
	if val := args.Get(0); val != nil {
		counts = val.(map[string]int64)
	}
	return counts, args.Error(1)
}

func (m *MessageRepositoryMock) LatestGroupMessage(ctx context.Context, groupID int64) (models.Message, error) {
	args := m.Called(ctx, groupID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListPrivateHistory(ctx context.Context, identity, counterpart string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, identity, counterpart, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListGroupHistory(ctx context.Context, groupID int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, groupID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ReceiptStatuses(ctx context.Context, messageIDs []int64) (map[int64]int, error) {
	args := m.Called(ctx, messageIDs)
	var statuses map[int64]int
	if val := args.Get(0); val != nil {
		statuses = val.(map[int64]int)
	}
	return statuses, args.Error(1)
}

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, owner, name, avatarURL string, members []string, created int64) (models.Group, error) {
	args := m.Called(ctx, owner, name, avatarURL, members, created)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetMember(ctx context.Context, groupID int64, member string) (models.GroupMember, error) {
	args := m.Called(ctx, groupID, member)
	var gm models.GroupMember
	if val := args.Get(0); val != nil {
		gm = val.(models.GroupMember)
	}
	return gm, args.Error(1)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID int64, member string) (bool, error) {
	args := m.Called(ctx, groupID, member)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) ListMemberships(ctx context.Context, member string) ([]models.Membership, error) {
	args := m.Called(ctx, member)
	var list []models.Membership
	if val := args.Get(0); val != nil {
		list = val.([]models.Membership)
	}
	return list, args.Error(1)
}

func (m *GroupRepositoryMock) LeaveGroup(ctx context.Context, groupID int64, member string) error {
	args := m.Called(ctx, groupID, member)
	return args.Error(0)
}

func (m *GroupRepositoryMock) UpdateWatermark(ctx context.Context, member string, groupID int64, timestamp int64) (int64, error) {
	args := m.Called(ctx, member, groupID, timestamp)
	return args.Get(0).(int64), args.Error(1)
}

func (m *GroupRepositoryMock) UnreadCount(ctx context.Context, member string, groupID int64) (int64, error) {
	args := m.Called(ctx, member, groupID)
	return args.Get(0).(int64), args.Error(1)
}

type ProfileRepositoryMock struct {
	mock.Mock
}

func (m *ProfileRepositoryMock) EnsureProfile(ctx context.Context, identity, displayName, avatarURL string) error {
	args := m.Called(ctx, identity, displayName, avatarURL)
	return args.Error(0)
}

func (m *ProfileRepositoryMock) GetProfile(ctx context.Context, identity string) (models.Profile, error) {
	args := m.Called(ctx, identity)
	var p models.Profile
	if val := args.Get(0); val != nil {
		p = val.(models.Profile)
	}
	return p, args.Error(1)
}

func (m *ProfileRepositoryMock) GetProfiles(ctx context.Context, identities []string) (map[string]models.Profile, error) {
	args := m.Called(ctx, identities)
	var profiles map[string]models.Profile
	if val := args.Get(0); val != nil {
		profiles = val.(map[string]models.Profile)
	}
	return profiles, args.Error(1)
}

func (m *ProfileRepositoryMock) TouchLastSeen(ctx context.Context, identity string, timestamp int64) error {
	args := m.Called(ctx, identity, timestamp)
	return args.Error(0)
}

type ExchangerMock struct {
	mock.Mock
}

func (m *ExchangerMock) Exchange(ctx context.Context, authCode string) (identity.Result, error) {
	args := m.Called(ctx, authCode)
	var res identity.Result
	if val := args.Get(0); val != nil {
		res = val.(identity.Result)
	}
	return res, args.Error(1)
}

var (
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
	_ repositories.GroupRepository   = (*GroupRepositoryMock)(nil)
	_ repositories.ProfileRepository = (*ProfileRepositoryMock)(nil)
	_ identity.Exchanger             = (*ExchangerMock)(nil)
)
