package service

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/media"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
	"chat-sync/internal/timefmt"
)

// ConversationDeps bundles the collaborators of ConversationService.
type ConversationDeps struct {
	Messages  repositories.MessageRepository
	Groups    repositories.GroupRepository
	Profiles  repositories.ProfileRepository
	Pointers  PointerStore
	Media     media.Resolver
	Formatter *timefmt.Formatter
	Timeout   time.Duration
	Logger    *logrus.Logger
}

// ConversationService builds conversation lists and private chat history.
type ConversationService struct {
	messages  repositories.MessageRepository
	groups    repositories.GroupRepository
	profiles  repositories.ProfileRepository
	pointers  PointerStore
	media     media.Resolver
	formatter *timefmt.Formatter
	timeout   time.Duration
	logger    *logrus.Logger
}

func NewConversationService(deps ConversationDeps) *ConversationService {
	return &ConversationService{
		messages:  deps.Messages,
		groups:    deps.Groups,
		profiles:  deps.Profiles,
		pointers:  deps.Pointers,
		media:     deps.Media,
		formatter: deps.Formatter,
		timeout:   deps.Timeout,
		logger:    deps.Logger,
	}
}

// BuildConversationList merges private and group conversations of identity, newest activity first.
// Display times are rendered after ordering and never influence it.
func (s *ConversationService) BuildConversationList(ctx context.Context, identity string) ([]models.ConversationSummary, error) {
	ctx, span := tracer.Start(ctx, "conversations.Build")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	private, err := s.privateSummaries(ctx, identity)
	if err != nil {
		return nil, fail(span, err)
	}
	groups, err := s.groupSummaries(ctx, identity)
	if err != nil {
		return nil, fail(span, err)
	}

	list := make([]models.ConversationSummary, 0, len(private)+len(groups))
	list = append(list, private...)
	list = append(list, groups...)
	sortByActivity(list)
	for i := range list {
		list[i].DisplayTime = s.formatter.Format(list[i].LastActivity, timefmt.SceneList)
	}

	span.SetAttributes(attribute.Int("conversations.count", len(list)))
	return list, nil
}

func (s *ConversationService) privateSummaries(ctx context.Context, identity string) ([]models.ConversationSummary, error) {
	pointers, err := s.pointers.Pointers(ctx, identity)
	if err != nil {
		return nil, err
	}
	if len(pointers) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(pointers))
	counterparts := make([]string, 0, len(pointers))
	for counterpart, id := range pointers {
		ids = append(ids, id)
		counterparts = append(counterparts, counterpart)
	}

	msgs, err := s.messages.GetMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Message, len(msgs))
	for _, msg := range msgs {
		byID[msg.ID] = msg
	}

	unread, err := s.messages.PrivateUnreadCounts(ctx, identity)
	if err != nil {
		return nil, err
	}
	profiles, err := s.profiles.GetProfiles(ctx, counterparts)
	if err != nil {
		return nil, err
	}

	labels := s.formatter.Labels()
	summaries := make([]models.ConversationSummary, 0, len(pointers))
	for counterpart, id := range pointers {
		msg, ok := byID[id]
		if !ok {
			s.logger.WithFields(logrus.Fields{"identity": identity, "message_id": id}).Warn("conversation pointer references missing message")
			continue
		}
		profile, ok := profiles[counterpart]
		if !ok {
			profile = models.Profile{Identity: counterpart}
		}
		summaries = append(summaries, models.ConversationSummary{
			Kind:         models.ConversationPrivate,
			Counterpart:  counterpart,
			Name:         profile.Name(),
			AvatarURL:    profile.AvatarURL,
			MessageID:    msg.ID,
			Preview:      labels.Preview(msg.Content, msg.Type),
			ContentType:  msg.Type,
			Unread:       unread[counterpart],
			LastActivity: msg.Created,
		})
	}
	return summaries, nil
}

func (s *ConversationService) groupSummaries(ctx context.Context, identity string) ([]models.ConversationSummary, error) {
	memberships, err := s.groups.ListMemberships(ctx, identity)
	if err != nil {
		return nil, err
	}

	labels := s.formatter.Labels()
	summaries := make([]models.ConversationSummary, 0, len(memberships))
	for _, m := range memberships {
		latest, err := s.messages.LatestGroupMessage(ctx, m.GroupID)
		if apperrors.Is(err, apperrors.ErrCodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		unread, err := s.groups.UnreadCount(ctx, identity, m.GroupID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, models.ConversationSummary{
			Kind:         models.ConversationGroup,
			GroupID:      m.GroupID,
			Name:         m.Name,
			AvatarURL:    m.AvatarURL,
			MessageID:    latest.ID,
			Preview:      labels.Preview(latest.Content, latest.Type),
			ContentType:  latest.Type,
			Unread:       unread,
			LastActivity: latest.Created,
		})
	}
	return summaries, nil
}

// sortByActivity orders by last activity descending; equal timestamps fall back to the newer message id.
func sortByActivity(list []models.ConversationSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].LastActivity != list[j].LastActivity {
			return list[i].LastActivity > list[j].LastActivity
		}
		return list[i].MessageID > list[j].MessageID
	})
}

// PrivateHistory returns the latest messages between identity and counterpart, oldest first.
func (s *ConversationService) PrivateHistory(ctx context.Context, identity, counterpart string, limit int) ([]models.HistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "conversations.PrivateHistory")
	defer span.End()

	if counterpart == "" {
		return nil, fail(span, apperrors.NewValidationError("counterpart is required"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msgs, err := s.messages.ListPrivateHistory(ctx, identity, counterpart, historyLimit(limit))
	if err != nil {
		return nil, fail(span, err)
	}
	if len(msgs) == 0 {
		return []models.HistoryEntry{}, nil
	}

	ids := make([]int64, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	statuses, err := s.messages.ReceiptStatuses(ctx, ids)
	if err != nil {
		return nil, fail(span, err)
	}
	profiles, err := s.profiles.GetProfiles(ctx, []string{identity, counterpart})
	if err != nil {
		return nil, fail(span, err)
	}

	h := historyBuilder{media: s.media, formatter: s.formatter, logger: s.logger}
	return h.build(ctx, msgs, profiles, statuses), nil
}
