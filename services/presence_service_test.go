package services

import (
	"context"
	"log/slog"
	"testing"

	"chat-relay/domain"
	"chat-relay/presence"
	"chat-relay/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Connect_Reports_Edge_Transition_And_Snapshot(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	registry := presence.NewRegistry()
	service := NewPresenceService(slog.Default(), registry, repositories.NewUserRepository(db))

	alice := uuid.NewString()

	// When the first connection arrives
	isFirst, online := service.Connect(alice, "conn-1")
	req.True(isFirst)
	req.Contains(online, alice)

	// Then a second connection of the same user is not a transition
	isFirst, online = service.Connect(alice, "conn-2")
	req.False(isFirst)
	req.Contains(online, alice)
}

func Test_Disconnect_Persists_LastSeen_Only_On_Last_Connection(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	registry := presence.NewRegistry()
	users := repositories.NewUserRepository(db)
	service := NewPresenceService(slog.Default(), registry, users)

	alice := uuid.NewString()
	req.NoError(users.Put(domain.User{ID: alice, Username: "alice", Name: "Alice"}))

	service.Connect(alice, "conn-1")
	service.Connect(alice, "conn-2")

	// When the first of two connections drops
	wasLast, err := service.Disconnect(context.Background(), alice, "conn-1")
	req.NoError(err)
	req.False(wasLast)

	fetched, err := users.Get(alice)
	req.NoError(err)
	req.Nil(fetched.LastSeen)

	// When the remaining connection drops
	wasLast, err = service.Disconnect(context.Background(), alice, "conn-2")
	req.NoError(err)
	req.True(wasLast)

	fetched, err = users.Get(alice)
	req.NoError(err)
	req.NotNil(fetched.LastSeen)
	req.False(registry.IsOnline(alice))
}

func Test_Disconnect_Unknown_Connection_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	registry := presence.NewRegistry()
	service := NewPresenceService(slog.Default(), registry, repositories.NewUserRepository(db))

	wasLast, err := service.Disconnect(context.Background(), uuid.NewString(), "conn-1")
	req.NoError(err)
	req.False(wasLast)
}
