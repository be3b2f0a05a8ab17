package domain

// One payload variant per bus topic. Shapes are re-validated inside the
// handlers before any domain logic runs; an invalid payload never reaches
// a persistence call or the registry.

type MessageSendPayload struct {
	FromUserID string `json:"fromUserId" validate:"required"`
	ToUserID   string `json:"toUserId" validate:"required"`
	Content    string `json:"content" validate:"required,min=1,max=5000"`
}

type MessageReadPayload struct {
	UserID     string   `json:"userId" validate:"required"`
	MessageIDs []string `json:"messageIds" validate:"required,min=1,dive,required"`
}

// TypingPayload covers both typing.start and typing.stop; username only
// matters for start and stays optional.
type TypingPayload struct {
	FromUserID string `json:"fromUserId" validate:"required"`
	ToUserID   string `json:"toUserId" validate:"required"`
	Username   string `json:"username" validate:"omitempty,min=1"`
}

type PresenceConnectPayload struct {
	UserID       string `json:"userId" validate:"required"`
	ConnectionID string `json:"connectionId" validate:"required"`
	Username     string `json:"username" validate:"required"`
	Name         string `json:"name,omitempty" validate:"omitempty,min=1"`
}

type PresenceDisconnectPayload struct {
	UserID       string `json:"userId" validate:"required"`
	ConnectionID string `json:"connectionId" validate:"required"`
	Username     string `json:"username" validate:"required"`
}
