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

type groupService interface {
	CreateGroup(ctx context.Context, owner, name, avatarURL string, members []string) (models.Group, error)
	ListGroups(ctx context.Context, identity string) ([]models.Membership, error)
	IsMember(ctx context.Context, groupID int64, member string) (bool, error)
	GroupHistory(ctx context.Context, identity string, groupID int64, limit int) ([]models.HistoryEntry, error)
	UpdateWatermark(ctx context.Context, member string, groupID int64, timestamp int64) (int64, error)
	UnreadCount(ctx context.Context, member string, groupID int64) (int64, error)
	LeaveGroup(ctx context.Context, member string, groupID int64) error
}

// GroupHandler manages group endpoints.
type GroupHandler struct {
	groups   groupService
	delivery deliveryService
	audit    *telemetry.AuditEmitter
}

// NewGroupHandler builds a GroupHandler.
func NewGroupHandler(groups groupService, delivery deliveryService, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{groups: groups, delivery: delivery, audit: audit}
}

// ListGroups returns the groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	identity := c.GetString(middleware.IdentityKey)
	groups, err := h.groups.ListGroups(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err, "failed to load groups")
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// CreateGroup creates a group owned by the caller.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name      string   `json:"name" binding:"required"`
		AvatarURL string   `json:"avatar_url"`
		Members   []string `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := c.GetString(middleware.IdentityKey)
	group, err := h.groups.CreateGroup(c.Request.Context(), identity, req.Name, req.AvatarURL, req.Members)
	if err != nil {
		h.emitAudit(c, "ERROR", "group creation failed")
		respondError(c, err, "could not create group")
		return
	}

	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, group)
}

// GetGroupMessages returns the group history for a member.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	identity := c.GetString(middleware.IdentityKey)
	entries, err := h.groups.GroupHistory(c.Request.Context(), identity, groupID, limit)
	if err != nil {
		respondError(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": entries})
}

// PostGroupMessage stores a group message and broadcasts it to subscribed connections.
func (h *GroupHandler) PostGroupMessage(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := c.GetString(middleware.IdentityKey)
	member, err := h.groups.IsMember(c.Request.Context(), groupID, identity)
	if err != nil {
		respondError(c, err, "failed to verify membership")
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a group member"})
		return
	}

	id, err := h.delivery.SendGroup(c.Request.Context(), identity, groupID, req.Content, req.Type)
	if err != nil {
		respondError(c, err, "failed to store message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message_id": id})
}

// UpdateWatermark moves the caller's group watermark forward, to now unless a timestamp is given.
func (h *GroupHandler) UpdateWatermark(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	var req struct {
		Timestamp int64 `json:"timestamp"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	identity := c.GetString(middleware.IdentityKey)
	stored, err := h.groups.UpdateWatermark(c.Request.Context(), identity, groupID, req.Timestamp)
	if err != nil {
		respondError(c, err, "failed to update watermark")
		return
	}
	c.JSON(http.StatusOK, gin.H{"rec_time": stored})
}

// GetUnread returns the caller's unread count for a group.
func (h *GroupHandler) GetUnread(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	identity := c.GetString(middleware.IdentityKey)
	count, err := h.groups.UnreadCount(c.Request.Context(), identity, groupID)
	if err != nil {
		respondError(c, err, "failed to count unread")
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// LeaveGroup removes the caller from the group.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	identity := c.GetString(middleware.IdentityKey)
	if err := h.groups.LeaveGroup(c.Request.Context(), identity, groupID); err != nil {
		h.emitAudit(c, "ERROR", "leave group failed")
		respondError(c, err, "could not leave group")
		return
	}

	h.emitAudit(c, "INFO", "Left group")
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), identityFromContext(c))
}

func parseGroupID(c *gin.Context) (int64, bool) {
	groupID, err := strconv.ParseInt(c.Param("group_id"), 10, 64)
	if err != nil || groupID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return 0, false
	}
	return groupID, true
}
