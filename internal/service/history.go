package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"chat-sync/internal/media"
	"chat-sync/internal/models"
	"chat-sync/internal/timefmt"
)

type historyBuilder struct {
	media     media.Resolver
	formatter *timefmt.Formatter
	logger    *logrus.Logger
}

// build decorates msgs, which must be oldest first. A time label is shown on the first
// entry and whenever the previous message is at least timeGapSeconds older.
// statuses may be nil for group history.
func (h historyBuilder) build(ctx context.Context, msgs []models.Message, profiles map[string]models.Profile, statuses map[int64]int) []models.HistoryEntry {
	entries := make([]models.HistoryEntry, 0, len(msgs))
	var prev int64
	for i, msg := range msgs {
		entry := models.HistoryEntry{Message: msg}

		profile, ok := profiles[msg.Sender]
		if !ok {
			profile = models.Profile{Identity: msg.Sender}
		}
		entry.SenderName = profile.Name()
		entry.SenderAvatar = profile.AvatarURL

		if i == 0 || msg.Created-prev >= timeGapSeconds {
			entry.ShowTime = true
			entry.DisplayTime = h.formatter.Format(msg.Created, timefmt.SceneRecords)
		}
		prev = msg.Created

		if status, ok := statuses[msg.ID]; ok {
			read := status == models.ReceiptRead
			entry.Read = &read
		}

		if msg.Type.IsMedia() {
			url, err := h.media.Resolve(ctx, msg.Content)
			if err != nil {
				h.logger.WithError(err).WithField("message_id", msg.ID).Warn("media resolve failed for history entry")
				url = ""
			}
			entry.Content = url
		}

		entries = append(entries, entry)
	}
	return entries
}
