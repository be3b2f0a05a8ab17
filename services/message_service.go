//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/domain"
	"chat-relay/repositories"

	"github.com/google/uuid"
)

type IMessageService interface {
	Send(ctx context.Context, fromUserID, toUserID, content string) (domain.MessageView, domain.Conversation, error)
}

// MessageService persists a direct message and maintains the two-party
// conversation summary alongside it.
type MessageService struct {
	log           *slog.Logger
	messages      repositories.IMessageRepository
	conversations repositories.IConversationRepository
	users         repositories.IUserRepository
}

func NewMessageService(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	conversations repositories.IConversationRepository,
	users repositories.IUserRepository,
) *MessageService {
	return &MessageService{log: log, messages: messages, conversations: conversations, users: users}
}

// Send stores the message unread, upserts the conversation the pair shares
// and returns the stored message with both parties resolved to display
// info. Any persistence failure propagates to the caller.
func (s *MessageService) Send(ctx context.Context, fromUserID, toUserID, content string) (domain.MessageView, domain.Conversation, error) {
	message := domain.Message{
		ID:        uuid.New(),
		From:      fromUserID,
		To:        toUserID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Create(message); err != nil {
		return domain.MessageView{}, domain.Conversation{}, fmt.Errorf("store message: %w", err)
	}

	conversation, err := s.conversations.Upsert(
		fromUserID, toUserID,
		message.ID,
		domain.Preview(content, domain.ConversationPreviewLength),
		message.CreatedAt,
	)
	if err != nil {
		return domain.MessageView{}, domain.Conversation{}, fmt.Errorf("upsert conversation: %w", err)
	}

	view := domain.MessageView{
		ID:        message.ID.String(),
		From:      s.userRef(fromUserID),
		To:        s.userRef(toUserID),
		Content:   content,
		Read:      false,
		CreatedAt: message.CreatedAt,
	}
	return view, conversation, nil
}

// userRef resolves display info for a user ID, degrading to empty names
// when the record is missing. A dangling reference is not an error here.
func (s *MessageService) userRef(userID string) domain.UserRef {
	user, err := s.users.Get(userID)
	if err != nil {
		s.log.Debug("User record missing for fanout view", "userId", userID)
		return domain.UserRef{ID: userID}
	}
	return domain.UserRef{ID: userID, Name: user.Name, Username: user.Username}
}
