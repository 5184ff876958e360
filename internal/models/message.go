package models

// ContentType identifies how a message body is interpreted.
type ContentType int

const (
	ContentText  ContentType = 1
	ContentImage ContentType = 2
	ContentVideo ContentType = 3
)

// IsMedia reports whether the content is a stored-object reference.
func (t ContentType) IsMedia() bool {
	return t != ContentText
}

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	return t == ContentText || t == ContentImage || t == ContentVideo
}

const (
	MessageStatusSent = 1
)

const (
	ReceiptUnread = 0
	ReceiptRead   = 1
)

// Message is an immutable chat message. Exactly one of Recipient and GroupID is set.
type Message struct {
	ID        int64       `db:"id" json:"id"`
	Sender    string      `db:"sender" json:"sender"`
	Recipient *string     `db:"recipient" json:"recipient,omitempty"`
	GroupID   *int64      `db:"group_id" json:"group_id,omitempty"`
	Content   string      `db:"content" json:"content"`
	Type      ContentType `db:"type" json:"type"`
	Status    int         `db:"status" json:"status"`
	Created   int64       `db:"created" json:"created"`
}

// Counterpart returns the other participant of a private message as seen by identity.
func (m Message) Counterpart(identity string) string {
	if m.Sender != identity || m.Recipient == nil {
		return m.Sender
	}
	return *m.Recipient
}

// Receipt is the read state of a private message for its recipient.
type Receipt struct {
	ID        int64  `db:"id" json:"id"`
	MessageID int64  `db:"message_id" json:"message_id"`
	Recipient string `db:"recipient" json:"recipient"`
	Status    int    `db:"status" json:"status"`
	Created   int64  `db:"created" json:"created"`
}

// HistoryEntry is a message prepared for a chat history view.
type HistoryEntry struct {
	Message
	SenderName   string `json:"sender_name"`
	SenderAvatar string `json:"sender_avatar,omitempty"`
	Read         *bool  `json:"read,omitempty"`
	ShowTime     bool   `json:"show_time"`
	DisplayTime  string `json:"display_time,omitempty"`
}
