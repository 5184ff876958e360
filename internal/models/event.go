package models

import "encoding/json"

// Inbound command names.
const (
	CommandSendPrivate  = "sendPrivate"
	CommandSendGroup    = "sendGroup"
	CommandMarkRead     = "markRead"
	CommandJoinChannel  = "joinChannel"
	CommandLeaveChannel = "leaveChannel"
	CommandReconnect    = "reconnect"
)

// Outbound event names.
const (
	EventConnected            = "connected"
	EventMessageReceived      = "messageReceived"
	EventGroupMessageReceived = "groupMessageReceived"
	EventAck                  = "ack"
	EventError                = "error"
)

// Frame is the websocket envelope used in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundFrame is a frame whose data is still unencoded.
type OutboundFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type SendPrivateCommand struct {
	Recipient string      `json:"recipient"`
	Content   string      `json:"content"`
	Type      ContentType `json:"type"`
}

type SendGroupCommand struct {
	Group   int64       `json:"group"`
	Content string      `json:"content"`
	Type    ContentType `json:"type"`
}

type MarkReadCommand struct {
	MessageID int64 `json:"messageId"`
}

type ChannelCommand struct {
	Group int64 `json:"group"`
}

type ReconnectCommand struct {
	AuthCode string `json:"authCode"`
}

type MessageReceived struct {
	Sender       string      `json:"sender"`
	SenderName   string      `json:"senderName"`
	SenderAvatar string      `json:"senderAvatar,omitempty"`
	Content      string      `json:"content"`
	ContentType  ContentType `json:"contentType"`
	MessageID    int64       `json:"messageId"`
	Created      int64       `json:"created"`
}

type GroupMessageReceived struct {
	Group        int64       `json:"group"`
	Sender       string      `json:"sender"`
	SenderName   string      `json:"senderName"`
	SenderAvatar string      `json:"senderAvatar,omitempty"`
	Content      string      `json:"content"`
	ContentType  ContentType `json:"contentType"`
	MessageID    int64       `json:"messageId"`
	Created      int64       `json:"created"`
}

type Connected struct {
	Identity string `json:"identity"`
	Handle   string `json:"handle"`
}

type Ack struct {
	Event     string `json:"event"`
	MessageID int64  `json:"messageId,omitempty"`
}

type ErrorEvent struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
