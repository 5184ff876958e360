package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/apperrors"
)

// respondError writes err with the status its code maps to. Internal details are not exposed.
func respondError(c *gin.Context, err error, fallback string) {
	status := apperrors.HTTPStatus(err)
	message := fallback
	var appErr *apperrors.AppError
	if status != http.StatusInternalServerError && errors.As(err, &appErr) {
		message = appErr.Message
	}
	c.JSON(status, gin.H{"error": message, "code": apperrors.GetCode(err)})
}
