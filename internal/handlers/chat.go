package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/telemetry"
)

type conversationService interface {
	BuildConversationList(ctx context.Context, identity string) ([]models.ConversationSummary, error)
	PrivateHistory(ctx context.Context, identity, counterpart string, limit int) ([]models.HistoryEntry, error)
}

type deliveryService interface {
	SendPrivate(ctx context.Context, sender, recipient, content string, contentType models.ContentType) (int64, error)
	SendGroup(ctx context.Context, sender string, groupID int64, content string, contentType models.ContentType) (int64, error)
	MarkRead(ctx context.Context, recipient string, messageID int64) error
	MarkAllRead(ctx context.Context, recipient, counterpart string) (int64, error)
}

// ChatHandler manages conversation list and private chat endpoints.
type ChatHandler struct {
	conversations conversationService
	delivery      deliveryService
	audit         *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(conversations conversationService, delivery deliveryService, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{conversations: conversations, delivery: delivery, audit: audit}
}

type sendMessageRequest struct {
	Content string             `json:"content" binding:"required"`
	Type    models.ContentType `json:"type"`
}

// ListConversations returns the caller's private and group conversations, newest first.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	identity := c.GetString(middleware.IdentityKey)

	list, err := h.conversations.BuildConversationList(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err, "failed to load conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// GetChatMessages returns the private history with a counterpart.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	identity := c.GetString(middleware.IdentityKey)
	entries, err := h.conversations.PrivateHistory(c.Request.Context(), identity, c.Param("counterpart"), limit)
	if err != nil {
		respondError(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": entries})
}

// PostChatMessage sends a private message to the counterpart.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := c.GetString(middleware.IdentityKey)
	id, err := h.delivery.SendPrivate(c.Request.Context(), identity, c.Param("counterpart"), req.Content, req.Type)
	if err != nil {
		h.emitAudit(c, "ERROR", "private message rejected")
		respondError(c, err, "failed to store message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message_id": id})
}

// MarkChatRead marks everything the counterpart sent to the caller as read.
func (h *ChatHandler) MarkChatRead(c *gin.Context) {
	identity := c.GetString(middleware.IdentityKey)
	count, err := h.delivery.MarkAllRead(c.Request.Context(), identity, c.Param("counterpart"))
	if err != nil {
		respondError(c, err, "failed to mark read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": count})
}

// MarkMessageRead marks one received message as read.
func (h *ChatHandler) MarkMessageRead(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	identity := c.GetString(middleware.IdentityKey)
	if err := h.delivery.MarkRead(c.Request.Context(), identity, messageID); err != nil {
		respondError(c, err, "failed to mark read")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), identityFromContext(c))
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	return limit, true
}
