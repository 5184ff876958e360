package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/media"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/repositories"
)

// DeliveryDeps bundles the collaborators of DeliveryService.
type DeliveryDeps struct {
	Messages    repositories.MessageRepository
	Profiles    repositories.ProfileRepository
	Pointers    PointerStore
	Connections ConnectionLookup
	Media       media.Resolver
	Pusher      Pusher
	Events      MessageEvents
	Timeout     time.Duration
	Logger      *logrus.Logger
}

// DeliveryService persists messages and pushes them to live connections.
type DeliveryService struct {
	messages    repositories.MessageRepository
	profiles    repositories.ProfileRepository
	pointers    PointerStore
	connections ConnectionLookup
	media       media.Resolver
	pusher      Pusher
	events      MessageEvents
	timeout     time.Duration
	logger      *logrus.Logger
	now         func() time.Time
}

func NewDeliveryService(deps DeliveryDeps) *DeliveryService {
	return &DeliveryService{
		messages:    deps.Messages,
		profiles:    deps.Profiles,
		pointers:    deps.Pointers,
		connections: deps.Connections,
		media:       deps.Media,
		pusher:      deps.Pusher,
		events:      deps.Events,
		timeout:     deps.Timeout,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// SendPrivate stores a private message with its unread receipt and notifies the recipient if online.
// The returned id does not depend on whether the push happened.
func (s *DeliveryService) SendPrivate(ctx context.Context, sender, recipient, content string, contentType models.ContentType) (int64, error) {
	ctx, span := tracer.Start(ctx, "delivery.SendPrivate")
	defer span.End()

	if sender == "" {
		return 0, fail(span, apperrors.NewValidationError("sender is required"))
	}
	if recipient == "" {
		return 0, fail(span, apperrors.NewValidationError("recipient is required"))
	}
	contentType = normalizeType(contentType)

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	msg, err := s.messages.WritePrivateMessage(writeCtx, sender, recipient, content, contentType, s.now().Unix())
	cancel()
	if err != nil {
		return 0, fail(span, err)
	}
	span.SetAttributes(attribute.Int64("message.id", msg.ID))
	observability.IncMessageStored(models.ConversationPrivate)

	log := s.logger.WithFields(logrus.Fields{"message_id": msg.ID, "identity": sender, "recipient": recipient})

	pointerCtx, cancel := context.WithTimeout(ctx, s.timeout)
	if _, err := s.pointers.Upsert(pointerCtx, sender, recipient, msg.ID, msg.Created); err != nil {
		observability.IncPointerFailure()
		log.WithError(err).Warn("conversation pointer upsert failed")
	}
	cancel()

	if s.events != nil {
		s.events.MessageStored(ctx, msg)
	}

	s.pushPrivate(ctx, msg, log)
	return msg.ID, nil
}

func (s *DeliveryService) pushPrivate(ctx context.Context, msg models.Message, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	handle, online, err := s.connections.LookupConnection(ctx, *msg.Recipient)
	if err != nil {
		observability.IncPush(observability.PushLookupFailed)
		log.WithError(err).Warn("recipient lookup failed, skipping push")
		return
	}
	if !online {
		observability.IncPush(observability.PushOffline)
		log.Debug("recipient offline, message stored for later")
		return
	}

	content, err := s.displayContent(ctx, msg)
	if err != nil {
		observability.IncPush(observability.PushMediaFailed)
		log.WithError(err).Warn("media resolve failed, skipping push")
		return
	}

	sender := s.senderProfile(ctx, msg.Sender)
	frame := models.OutboundFrame{
		Event: models.EventMessageReceived,
		Data: models.MessageReceived{
			Sender:       msg.Sender,
			SenderName:   sender.Name(),
			SenderAvatar: sender.AvatarURL,
			Content:      content,
			ContentType:  msg.Type,
			MessageID:    msg.ID,
			Created:      msg.Created,
		},
	}
	if !s.pusher.Push(handle, frame) {
		observability.IncPush(observability.PushDropped)
		log.WithField("conn_id", handle).Warn("push dropped")
		return
	}
	observability.IncPush(observability.PushDelivered)
}

// SendGroup stores a group message and broadcasts it to the group's channel.
// Nothing is broadcast when persistence fails.
func (s *DeliveryService) SendGroup(ctx context.Context, sender string, groupID int64, content string, contentType models.ContentType) (int64, error) {
	ctx, span := tracer.Start(ctx, "delivery.SendGroup")
	defer span.End()
	span.SetAttributes(attribute.Int64("group.id", groupID))

	if sender == "" {
		return 0, fail(span, apperrors.NewValidationError("sender is required"))
	}
	if groupID <= 0 {
		return 0, fail(span, apperrors.NewValidationError("group is required"))
	}
	contentType = normalizeType(contentType)

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	msg, err := s.messages.WriteGroupMessage(writeCtx, sender, groupID, content, contentType, s.now().Unix())
	cancel()
	if err != nil {
		return 0, fail(span, err)
	}
	observability.IncMessageStored(models.ConversationGroup)

	if s.events != nil {
		s.events.MessageStored(ctx, msg)
	}

	log := s.logger.WithFields(logrus.Fields{"message_id": msg.ID, "identity": sender, "group_id": groupID})

	pushCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	display, err := s.displayContent(pushCtx, msg)
	if err != nil {
		observability.IncPush(observability.PushMediaFailed)
		log.WithError(err).Warn("media resolve failed, skipping broadcast")
		return msg.ID, nil
	}

	profile := s.senderProfile(pushCtx, sender)
	n := s.pusher.Broadcast(groupID, models.OutboundFrame{
		Event: models.EventGroupMessageReceived,
		Data: models.GroupMessageReceived{
			Group:        groupID,
			Sender:       sender,
			SenderName:   profile.Name(),
			SenderAvatar: profile.AvatarURL,
			Content:      display,
			ContentType:  msg.Type,
			MessageID:    msg.ID,
			Created:      msg.Created,
		},
	})
	log.WithField("subscribers", n).Debug("group message broadcast")
	return msg.ID, nil
}

// MarkRead marks one receipt of recipient as read. Repeating it is harmless.
func (s *DeliveryService) MarkRead(ctx context.Context, recipient string, messageID int64) error {
	ctx, span := tracer.Start(ctx, "delivery.MarkRead")
	defer span.End()

	if messageID <= 0 {
		return fail(span, apperrors.NewValidationError("message id is required"))
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.messages.MarkRead(writeCtx, recipient, messageID); err != nil {
		return fail(span, err)
	}
	if s.events != nil {
		s.events.MessagesRead(ctx, recipient, messageID, "", 1)
	}
	return nil
}

// MarkAllRead marks every unread receipt sent by counterpart to recipient as read.
func (s *DeliveryService) MarkAllRead(ctx context.Context, recipient, counterpart string) (int64, error) {
	ctx, span := tracer.Start(ctx, "delivery.MarkAllRead")
	defer span.End()

	if counterpart == "" {
		return 0, fail(span, apperrors.NewValidationError("counterpart is required"))
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	count, err := s.messages.MarkAllRead(writeCtx, recipient, counterpart)
	if err != nil {
		return 0, fail(span, err)
	}
	if count > 0 && s.events != nil {
		s.events.MessagesRead(ctx, recipient, 0, counterpart, count)
	}
	return count, nil
}

func (s *DeliveryService) displayContent(ctx context.Context, msg models.Message) (string, error) {
	if !msg.Type.IsMedia() {
		return msg.Content, nil
	}
	return s.media.Resolve(ctx, msg.Content)
}

func (s *DeliveryService) senderProfile(ctx context.Context, identity string) models.Profile {
	profile, err := s.profiles.GetProfile(ctx, identity)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrCodeNotFound) {
			s.logger.WithError(err).WithField("identity", identity).Warn("sender profile lookup failed")
		}
		return models.Profile{Identity: identity}
	}
	return profile
}

// normalizeType treats an omitted type as text.
func normalizeType(t models.ContentType) models.ContentType {
	if t == 0 {
		return models.ContentText
	}
	return t
}
