package models

const (
	ConversationPrivate = "private"
	ConversationGroup   = "group"
)

// ConversationSummary is one entry of a user's conversation list.
type ConversationSummary struct {
	Kind         string      `json:"kind"`
	Counterpart  string      `json:"counterpart,omitempty"`
	GroupID      int64       `json:"group_id,omitempty"`
	Name         string      `json:"name"`
	AvatarURL    string      `json:"avatar_url"`
	MessageID    int64       `json:"message_id"`
	Preview      string      `json:"preview"`
	ContentType  ContentType `json:"content_type"`
	Unread       int64       `json:"unread"`
	LastActivity int64       `json:"last_activity"`
	DisplayTime  string      `json:"display_time"`
}
