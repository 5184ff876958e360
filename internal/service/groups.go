package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/media"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
	"chat-sync/internal/timefmt"
)

// GroupDeps bundles the collaborators of GroupService.
type GroupDeps struct {
	Messages  repositories.MessageRepository
	Groups    repositories.GroupRepository
	Profiles  repositories.ProfileRepository
	Media     media.Resolver
	Formatter *timefmt.Formatter
	Channels  ChannelRevoker
	Timeout   time.Duration
	Logger    *logrus.Logger
}

// GroupService manages group membership, watermarks and group history.
type GroupService struct {
	messages  repositories.MessageRepository
	groups    repositories.GroupRepository
	profiles  repositories.ProfileRepository
	media     media.Resolver
	formatter *timefmt.Formatter
	channels  ChannelRevoker
	timeout   time.Duration
	logger    *logrus.Logger
	now       func() time.Time
}

func NewGroupService(deps GroupDeps) *GroupService {
	return &GroupService{
		messages:  deps.Messages,
		groups:    deps.Groups,
		profiles:  deps.Profiles,
		media:     deps.Media,
		formatter: deps.Formatter,
		channels:  deps.Channels,
		timeout:   deps.Timeout,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// CreateGroup creates a group owned by owner with the given members in one transaction.
func (s *GroupService) CreateGroup(ctx context.Context, owner, name, avatarURL string, members []string) (models.Group, error) {
	ctx, span := tracer.Start(ctx, "groups.Create")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return models.Group{}, fail(span, apperrors.NewValidationError("group name is required"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	group, err := s.groups.CreateGroup(ctx, owner, name, avatarURL, members, s.now().Unix())
	if err != nil {
		return models.Group{}, fail(span, err)
	}
	s.logger.WithFields(logrus.Fields{"group_id": group.ID, "identity": owner, "members": len(members)}).Info("group created")
	return group, nil
}

func (s *GroupService) ListGroups(ctx context.Context, identity string) ([]models.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	memberships, err := s.groups.ListMemberships(ctx, identity)
	if err != nil {
		return nil, err
	}
	if memberships == nil {
		memberships = []models.Membership{}
	}
	return memberships, nil
}

func (s *GroupService) IsMember(ctx context.Context, groupID int64, member string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.groups.IsMember(ctx, groupID, member)
}

// GroupHistory returns the latest group messages, oldest first. Only active members may read it.
func (s *GroupService) GroupHistory(ctx context.Context, identity string, groupID int64, limit int) ([]models.HistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "groups.History")
	defer span.End()
	span.SetAttributes(attribute.Int64("group.id", groupID))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	member, err := s.groups.IsMember(ctx, groupID, identity)
	if err != nil {
		return nil, fail(span, err)
	}
	if !member {
		return nil, fail(span, apperrors.NewForbiddenError("not a member of this group"))
	}

	msgs, err := s.messages.ListGroupHistory(ctx, groupID, historyLimit(limit))
	if err != nil {
		return nil, fail(span, err)
	}
	if len(msgs) == 0 {
		return []models.HistoryEntry{}, nil
	}

	seen := make(map[string]struct{})
	senders := make([]string, 0)
	for _, msg := range msgs {
		if _, ok := seen[msg.Sender]; !ok {
			seen[msg.Sender] = struct{}{}
			senders = append(senders, msg.Sender)
		}
	}
	profiles, err := s.profiles.GetProfiles(ctx, senders)
	if err != nil {
		return nil, fail(span, err)
	}

	h := historyBuilder{media: s.media, formatter: s.formatter, logger: s.logger}
	return h.build(ctx, msgs, profiles, nil), nil
}

// UpdateWatermark moves member's watermark for the group forward. A zero timestamp means now.
// It returns the stored watermark, which never decreases.
func (s *GroupService) UpdateWatermark(ctx context.Context, member string, groupID int64, timestamp int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "groups.UpdateWatermark")
	defer span.End()

	if timestamp < 0 {
		return 0, fail(span, apperrors.NewValidationError("timestamp must not be negative"))
	}
	if timestamp == 0 {
		timestamp = s.now().Unix()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stored, err := s.groups.UpdateWatermark(ctx, member, groupID, timestamp)
	if err != nil {
		return 0, fail(span, err)
	}
	if stored != timestamp {
		s.logger.WithFields(logrus.Fields{"identity": member, "group_id": groupID, "requested": timestamp, "stored": stored}).Debug("watermark not moved backward")
	}
	return stored, nil
}

func (s *GroupService) UnreadCount(ctx context.Context, member string, groupID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.groups.UnreadCount(ctx, member, groupID)
}

func (s *GroupService) LeaveGroup(ctx context.Context, member string, groupID int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.groups.LeaveGroup(ctx, groupID, member); err != nil {
		return err
	}
	revoked := 0
	if s.channels != nil {
		revoked = s.channels.RevokeMember(groupID, member)
	}
	s.logger.WithFields(logrus.Fields{"identity": member, "group_id": groupID, "revoked": revoked}).Info("member left group")
	return nil
}
