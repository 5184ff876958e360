package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/logging"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/timefmt"
)

type conversationFixture struct {
	messages *mocks.MessageRepositoryMock
	groups   *mocks.GroupRepositoryMock
	profiles *mocks.ProfileRepositoryMock
	pointers *mocks.PointerStoreMock
	media    *mocks.MediaResolverMock
	svc      *ConversationService
}

func testFormatter() *timefmt.Formatter {
	return timefmt.New(time.UTC, timefmt.English).WithClock(func() time.Time { return time.Unix(testNow, 0) })
}

func newConversationFixture() *conversationFixture {
	f := &conversationFixture{
		messages: new(mocks.MessageRepositoryMock),
		groups:   new(mocks.GroupRepositoryMock),
		profiles: new(mocks.ProfileRepositoryMock),
		pointers: new(mocks.PointerStoreMock),
		media:    new(mocks.MediaResolverMock),
	}
	f.svc = NewConversationService(ConversationDeps{
		Messages:  f.messages,
		Groups:    f.groups,
		Profiles:  f.profiles,
		Pointers:  f.pointers,
		Media:     f.media,
		Formatter: testFormatter(),
		Timeout:   time.Second,
		Logger:    logging.Discard(),
	})
	return f
}

func TestBuildConversationListMergesAndSorts(t *testing.T) {
	f := newConversationFixture()
	ctx := context.Background()
	me := "me"
	g1, g2 := int64(1), int64(2)

	f.pointers.On("Pointers", mock.Anything, "me").Return(map[string]int64{"alice": 10, "bob": 20}, nil)
	f.messages.On("GetMessages", mock.Anything, mock.MatchedBy(func(ids []int64) bool { return len(ids) == 2 })).Return([]models.Message{
		{ID: 10, Sender: "alice", Recipient: &me, Content: "hi", Type: models.ContentText, Created: testNow - 100},
		{ID: 20, Sender: "me", Recipient: strPtr("bob"), Content: "vid/1.mp4", Type: models.ContentVideo, Created: testNow - 2*86400},
	}, nil)
	f.messages.On("PrivateUnreadCounts", mock.Anything, "me").Return(map[string]int64{"alice": 2}, nil)
	f.profiles.On("GetProfiles", mock.Anything, mock.Anything).Return(map[string]models.Profile{
		"alice": {Identity: "alice", DisplayName: "Alice"},
	}, nil)
	f.groups.On("ListMemberships", mock.Anything, "me").Return([]models.Membership{
		{GroupID: g1, Name: "Climbers"},
		{GroupID: g2, Name: "Quiet"},
	}, nil)
	f.messages.On("LatestGroupMessage", mock.Anything, g1).Return(models.Message{ID: 30, Sender: "carol", GroupID: &g1, Content: "img/x.png", Type: models.ContentImage, Created: testNow - 86400}, nil)
	f.messages.On("LatestGroupMessage", mock.Anything, g2).Return(nil, apperrors.NewNotFoundError("group message"))
	f.groups.On("UnreadCount", mock.Anything, "me", g1).Return(int64(4), nil)

	list, err := f.svc.BuildConversationList(ctx, "me")
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "alice", list[0].Counterpart)
	assert.Equal(t, "Alice", list[0].Name)
	assert.Equal(t, "hi", list[0].Preview)
	assert.Equal(t, int64(2), list[0].Unread)
	assert.Equal(t, time.Unix(testNow-100, 0).UTC().Format("15:04"), list[0].DisplayTime)

	assert.Equal(t, models.ConversationGroup, list[1].Kind)
	assert.Equal(t, g1, list[1].GroupID)
	assert.Equal(t, "[Image]", list[1].Preview)
	assert.Equal(t, int64(4), list[1].Unread)
	assert.Equal(t, "Yesterday", list[1].DisplayTime)

	assert.Equal(t, "bob", list[2].Counterpart)
	assert.Equal(t, "bob", list[2].Name)
	assert.Equal(t, "[Video]", list[2].Preview)
	assert.Zero(t, list[2].Unread)

	f.groups.AssertNotCalled(t, "UnreadCount", mock.Anything, "me", g2)
}

func TestBuildConversationListEmpty(t *testing.T) {
	f := newConversationFixture()
	f.pointers.On("Pointers", mock.Anything, "me").Return(map[string]int64{}, nil)
	f.groups.On("ListMemberships", mock.Anything, "me").Return(nil, nil)

	list, err := f.svc.BuildConversationList(context.Background(), "me")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestBuildConversationListPropagatesCacheOutage(t *testing.T) {
	f := newConversationFixture()
	f.pointers.On("Pointers", mock.Anything, "me").Return(nil, apperrors.NewUnavailableError(assert.AnError, "redis"))

	_, err := f.svc.BuildConversationList(context.Background(), "me")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestSortByActivityBreaksTiesByMessageID(t *testing.T) {
	list := []models.ConversationSummary{
		{MessageID: 1, LastActivity: 50},
		{MessageID: 3, LastActivity: 100},
		{MessageID: 2, LastActivity: 100},
		{MessageID: 4, LastActivity: 10},
	}
	sortByActivity(list)

	ids := make([]int64, len(list))
	for i, s := range list {
		ids[i] = s.MessageID
	}
	assert.Equal(t, []int64{3, 2, 1, 4}, ids)
}

func TestPrivateHistoryMarksTimeGapsAndReadState(t *testing.T) {
	f := newConversationFixture()
	me := "me"
	base := testNow - 3600

	msgs := []models.Message{
		{ID: 1, Sender: "alice", Recipient: &me, Content: "a", Type: models.ContentText, Created: base},
		{ID: 2, Sender: "me", Recipient: strPtr("alice"), Content: "b", Type: models.ContentText, Created: base + 299},
		{ID: 3, Sender: "alice", Recipient: &me, Content: "img/1.png", Type: models.ContentImage, Created: base + 599},
	}
	f.messages.On("ListPrivateHistory", mock.Anything, "me", "alice", defaultHistoryLimit).Return(msgs, nil)
	f.messages.On("ReceiptStatuses", mock.Anything, []int64{1, 2, 3}).Return(map[int64]int{1: models.ReceiptRead, 2: models.ReceiptUnread, 3: models.ReceiptUnread}, nil)
	f.profiles.On("GetProfiles", mock.Anything, []string{"me", "alice"}).Return(map[string]models.Profile{
		"alice": {Identity: "alice", DisplayName: "Alice"},
	}, nil)
	f.media.On("Resolve", mock.Anything, "img/1.png").Return("https://media.test/img/1.png", nil)

	entries, err := f.svc.PrivateHistory(context.Background(), "me", "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.True(t, entries[0].ShowTime)
	assert.NotEmpty(t, entries[0].DisplayTime)
	assert.False(t, entries[1].ShowTime)
	assert.Empty(t, entries[1].DisplayTime)
	assert.True(t, entries[2].ShowTime)

	assert.Equal(t, "Alice", entries[0].SenderName)
	assert.Equal(t, "me", entries[1].SenderName)
	require.NotNil(t, entries[0].Read)
	assert.True(t, *entries[0].Read)
	require.NotNil(t, entries[1].Read)
	assert.False(t, *entries[1].Read)
	assert.Equal(t, "https://media.test/img/1.png", entries[2].Content)
}

func TestPrivateHistoryRequiresCounterpart(t *testing.T) {
	f := newConversationFixture()
	_, err := f.svc.PrivateHistory(context.Background(), "me", "", 10)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
}

func TestHistoryLimitBounds(t *testing.T) {
	assert.Equal(t, defaultHistoryLimit, historyLimit(0))
	assert.Equal(t, 10, historyLimit(10))
	assert.Equal(t, maxHistoryLimit, historyLimit(10000))
}

func strPtr(s string) *string {
	return &s
}
