package models

// Fabric event types. Each maps to exactly one outbound envelope shape.
const (
	EventChatMessage       = "chat.message"
	EventChatMessageUpdate = "chat.message_update"
	EventChatMessageDelete = "chat.message_delete"
	EventChatTyping        = "chat.typing"
	EventNotification      = "notification"
)

// Event is the unit published on the broadcast fabric. It is also the wire
// format between service instances when the fabric is backed by Redis.
type Event struct {
	Type         string        `json:"type"`
	Message      *Message      `json:"message,omitempty"`
	MessageID    int64         `json:"message_id,omitempty"`
	Username     string        `json:"username,omitempty"`
	Typing       bool          `json:"typing,omitempty"`
	SenderID     *int64        `json:"sender_id,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// Outbound envelope types sent to WebSocket clients.
const (
	TypeConnectionEstablished = "connection_established"
	TypeChat                  = "chat"
	TypeChatUpdate            = "chat_update"
	TypeChatDelete            = "chat_delete"
	TypeTyping                = "typing"
	TypeNotificationMeta      = "notification_meta"
	TypeNotification          = "notification"
	TypeNotificationMarked    = "notification_marked"
)

type ConnectionEstablishedEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ChatEnvelope struct {
	Type    string   `json:"type"`
	Payload *Message `json:"payload"`
}

type ChatDeleteEnvelope struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
}

type TypingEnvelope struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Typing   bool   `json:"typing"`
	SenderID *int64 `json:"sender_id"`
}

type NotificationMetaEnvelope struct {
	Type   string `json:"type"`
	Unread int    `json:"unread"`
}

type NotificationEnvelope struct {
	Type    string        `json:"type"`
	Payload *Notification `json:"payload"`
}

type NotificationMarkedEnvelope struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// ErrorEnvelope reports a failed action to the single caller that sent it.
type ErrorEnvelope struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
