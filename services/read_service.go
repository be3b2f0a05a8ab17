//go:generate go run go.uber.org/mock/mockgen -source=read_service.go -destination=../mocks/mock_read_service.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/domain"
	"chat-relay/repositories"

	"github.com/samber/lo"
)

type IReadService interface {
	MarkRead(ctx context.Context, userID string, messageIDs []string) (int, map[string][]string, error)
}

// ReadService flips read state and works out which senders must learn
// about it.
type ReadService struct {
	log      *slog.Logger
	messages repositories.IMessageRepository
}

func NewReadService(log *slog.Logger, messages repositories.IMessageRepository) *ReadService {
	return &ReadService{log: log, messages: messages}
}

// MarkRead marks as read only those messages among messageIDs that are
// addressed to userID and still unread. When anything changed it re-fetches
// the affected messages and groups their IDs by sender, one fanout target
// per distinct sender. No change means no grouping and no fanout.
func (s *ReadService) MarkRead(ctx context.Context, userID string, messageIDs []string) (int, map[string][]string, error) {
	modified, err := s.messages.MarkRead(userID, messageIDs, time.Now().UTC())
	if err != nil {
		return 0, nil, err
	}
	if modified == 0 {
		return 0, nil, nil
	}

	owned, err := s.messages.GetOwnedByIDs(userID, messageIDs)
	if err != nil {
		return 0, nil, err
	}

	bySender := lo.MapValues(
		lo.GroupBy(owned, func(message domain.Message) string { return message.From }),
		func(messages []domain.Message, _ string) []string {
			return lo.Map(messages, func(message domain.Message, _ int) string {
				return message.ID.String()
			})
		},
	)
	return modified, bySender, nil
}
