package handlers

import "time"

// Reply envelopes produced by the handlers. Validation failures always
// come back as failureResponse; they never cross the handler boundary as
// errors.

type failureResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type okResponse struct {
	Success bool `json:"success"`
}

type sendResponse struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

type readResponse struct {
	Success       bool     `json:"success"`
	MessageIDs    []string `json:"messageIds"`
	ModifiedCount int      `json:"modifiedCount"`
}

type connectResponse struct {
	Success           bool     `json:"success"`
	IsFirstConnection bool     `json:"isFirstConnection"`
	OnlineUserIDs     []string `json:"onlineUserIds"`
}

type disconnectResponse struct {
	Success           bool `json:"success"`
	WasLastConnection bool `json:"wasLastConnection"`
}
