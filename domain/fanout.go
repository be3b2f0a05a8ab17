package domain

import "time"

// Event names pushed through the fanout transport.
const (
	EventMessageSent     = "message:sent"
	EventMessageNew      = "message:new"
	EventNotificationNew = "notification:new"
	EventMessageRead     = "message:read"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventUserOnline      = "user:online"
	EventUserOffline     = "user:offline"
	EventUsersOnline     = "users:online"
)

// UserRef is the sender/recipient info embedded in pushed events.
type UserRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// MessageView is the wire shape of a message inside message:sent and
// message:new events, with both parties resolved to display info.
type MessageView struct {
	ID        string    `json:"id"`
	From      UserRef   `json:"from"`
	To        UserRef   `json:"to"`
	Content   string    `json:"content"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type MessageEnvelope struct {
	Message MessageView `json:"message"`
}

type NotificationEvent struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	From           UserRef   `json:"from"`
	Message        string    `json:"message"`
	Preview        string    `json:"preview"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

type MessageReadEvent struct {
	MessageIDs []string `json:"messageIds"`
	ReadBy     string   `json:"readBy"`
}

type TypingEvent struct {
	From     string `json:"from"`
	Username string `json:"username,omitempty"`
}

type PresenceEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type OnlineUsersEvent struct {
	UserIDs []string `json:"userIds"`
}
