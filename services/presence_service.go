//go:generate go run go.uber.org/mock/mockgen -source=presence_service.go -destination=../mocks/mock_presence_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/repositories"
)

type IPresenceService interface {
	Connect(userID, connectionID string) (bool, []string)
	Disconnect(ctx context.Context, userID, connectionID string) (bool, error)
}

// PresenceService applies connection lifecycle to the registry and owns
// the lastSeen side-effect of a final disconnect.
type PresenceService struct {
	log      *slog.Logger
	registry contract.IRegistry
	users    repositories.IUserRepository
}

func NewPresenceService(log *slog.Logger, registry contract.IRegistry, users repositories.IUserRepository) *PresenceService {
	return &PresenceService{log: log, registry: registry, users: users}
}

// Connect registers the connection and returns whether the user just came
// online, plus the online snapshot taken after the registration.
func (s *PresenceService) Connect(userID, connectionID string) (bool, []string) {
	isFirst := s.registry.AddConnection(userID, connectionID)
	return isFirst, s.registry.OnlineUserIDs()
}

// Disconnect releases the registry entry first and only then touches the
// store; the registry lock is never held across the write. lastSeen is
// persisted solely on the edge transition to offline.
func (s *PresenceService) Disconnect(ctx context.Context, userID, connectionID string) (bool, error) {
	wasLast := s.registry.RemoveConnection(userID, connectionID)
	if !wasLast {
		return false, nil
	}
	if err := s.users.UpdateLastSeen(userID, time.Now().UTC()); err != nil {
		return true, fmt.Errorf("persist lastSeen: %w", err)
	}
	return true, nil
}
