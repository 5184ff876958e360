package ws

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/models"
)

func newConnID() string {
	return uuid.NewString()
}

func encodeFrame(frame models.OutboundFrame) ([]byte, error) {
	return json.Marshal(frame)
}

// errorFrame reports err to the client. Storage and internal details stay server-side.
func errorFrame(event string, err error) models.OutboundFrame {
	code := apperrors.ErrCodeInternal
	message := "internal error"

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		if code != apperrors.ErrCodeStorage && code != apperrors.ErrCodeInternal {
			message = appErr.Message
		}
	}
	return models.OutboundFrame{
		Event: models.EventError,
		Data:  models.ErrorEvent{Event: event, Code: string(code), Message: message},
	}
}

func ackFrame(event string, messageID int64) models.OutboundFrame {
	return models.OutboundFrame{
		Event: models.EventAck,
		Data:  models.Ack{Event: event, MessageID: messageID},
	}
}
