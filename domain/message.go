// Package domain contains core concepts of the messaging relay.
// This file defines the persisted records and their invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxContentLength bounds a single chat message.
	MaxContentLength = 5000
	// ConversationPreviewLength bounds the summary stored on a conversation.
	ConversationPreviewLength = 100
	// NotificationPreviewLength bounds the excerpt pushed with a notification.
	NotificationPreviewLength = 50
)

// Message represents a direct message between two users.
// Immutable once stored, except for the read flag.
type Message struct {
	ID        uuid.UUID
	From      string
	To        string
	Content   string
	Read      bool
	ReadAt    *time.Time
	CreatedAt time.Time
}

// Conversation is the two-party summary record keyed by the canonically
// ordered participant pair.
type Conversation struct {
	Key                string
	Participants       [2]string
	LastMessageID      uuid.UUID
	LastMessagePreview string
	LastMessageAt      time.Time
	CreatedAt          time.Time
}

// User is the minimal identity record the relay needs: display info for
// notifications and the lastSeen mark written on final disconnect.
type User struct {
	ID       string
	Username string
	Name     string
	LastSeen *time.Time
}

// ConversationKey sorts the two participant IDs so that (A,B) and (B,A)
// always resolve to the same conversation record.
func ConversationKey(a, b string) string {
	participants := []string{a, b}
	sort.Strings(participants)
	return participants[0] + ":" + participants[1]
}

// Preview truncates content to at most max runes.
func Preview(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max])
}
