package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"chat-relay/domain"
	"chat-relay/mocks"
	"chat-relay/presence"
	"chat-relay/repositories"
	"chat-relay/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	handlers *Handlers
	emitter  *mocks.MockEmitter
	registry *presence.Registry
	users    repositories.UserRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	ctrl := gomock.NewController(t)
	emitter := mocks.NewMockEmitter(ctrl)
	registry := presence.NewRegistry()

	messages := repositories.NewMessageRepository(db, log, nil)
	conversations := repositories.NewConversationRepository(db)
	users := repositories.NewUserRepository(db)

	handlers := New(
		log,
		services.NewMessageService(log, messages, conversations, users),
		services.NewReadService(log, messages),
		services.NewPresenceService(log, registry, users),
		emitter,
	)
	return fixture{handlers: handlers, emitter: emitter, registry: registry, users: users}
}

func marshal(t *testing.T, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

// allowSendFanout relaxes the emitter for tests that seed messages through
// the send handler but assert on a later stage.
func (f fixture) allowSendFanout() {
	f.emitter.EXPECT().EmitToUser(gomock.Any(), gomock.Any(), domain.EventMessageSent, gomock.Any()).AnyTimes()
	f.emitter.EXPECT().EmitToUser(gomock.Any(), gomock.Any(), domain.EventMessageNew, gomock.Any()).AnyTimes()
	f.emitter.EXPECT().EmitToUser(gomock.Any(), gomock.Any(), domain.EventNotificationNew, gomock.Any()).AnyTimes()
}

func Test_MessageSend_Emits_To_Sender_And_Recipient(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := uuid.NewString()
	bob := uuid.NewString()
	req.NoError(f.users.Put(domain.User{ID: alice, Username: "alice", Name: "Alice"}))

	// Then the sender gets an echo and the recipient the message plus a notification
	f.emitter.EXPECT().EmitToUser(gomock.Any(), alice, domain.EventMessageSent, gomock.Any())
	f.emitter.EXPECT().EmitToUser(gomock.Any(), bob, domain.EventMessageNew, gomock.Any())
	f.emitter.EXPECT().
		EmitToUser(gomock.Any(), bob, domain.EventNotificationNew, gomock.Any()).
		Do(func(_ context.Context, _, _ string, payload any) {
			notification := payload.(domain.NotificationEvent)
			req.Equal("message", notification.Type)
			req.Equal("New message from @alice", notification.Message)
			req.Equal(domain.ConversationKey(alice, bob), notification.ConversationID)
		})

	// When alice sends a message over the bus
	response, err := f.handlers.MessageSend(context.Background(), marshal(t, domain.MessageSendPayload{
		FromUserID: alice,
		ToUserID:   bob,
		Content:    "hello bob",
	}))

	req.NoError(err)
	send := response.(sendResponse)
	req.True(send.Success)
	req.NotEmpty(send.MessageID)
}

func Test_MessageSend_Rejects_Empty_Content_Without_Fanout(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// No emitter expectations: a rejected payload must not fan out
	response, err := f.handlers.MessageSend(context.Background(), marshal(t, domain.MessageSendPayload{
		FromUserID: uuid.NewString(),
		ToUserID:   uuid.NewString(),
		Content:    "",
	}))

	req.NoError(err)
	failure := response.(failureResponse)
	req.False(failure.Success)
	req.Equal("Validation failed", failure.Error)
	req.NotEmpty(failure.Details)
}

func Test_MessageRead_Fans_Out_Once_Per_Sender(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := uuid.NewString()
	bob := uuid.NewString()
	reader := uuid.NewString()
	f.allowSendFanout()

	// Given the reader has stored messages from two senders
	sent1, err := f.handlers.MessageSend(context.Background(), marshal(t, domain.MessageSendPayload{
		FromUserID: alice, ToUserID: reader, Content: "from alice",
	}))
	req.NoError(err)
	sent2, err := f.handlers.MessageSend(context.Background(), marshal(t, domain.MessageSendPayload{
		FromUserID: bob, ToUserID: reader, Content: "from bob",
	}))
	req.NoError(err)

	id1 := sent1.(sendResponse).MessageID
	id2 := sent2.(sendResponse).MessageID

	f.emitter.EXPECT().
		EmitToUser(gomock.Any(), alice, domain.EventMessageRead, gomock.Any()).
		Do(func(_ context.Context, _, _ string, payload any) {
			event := payload.(domain.MessageReadEvent)
			req.Equal(reader, event.ReadBy)
			req.ElementsMatch([]string{id1}, event.MessageIDs)
		})
	f.emitter.EXPECT().EmitToUser(gomock.Any(), bob, domain.EventMessageRead, gomock.Any())

	// When the reader marks both, with one ID duplicated
	response, err := f.handlers.MessageRead(context.Background(), marshal(t, domain.MessageReadPayload{
		UserID:     reader,
		MessageIDs: []string{id1, id2, id1},
	}))

	req.NoError(err)
	read := response.(readResponse)
	req.True(read.Success)
	req.Equal(2, read.ModifiedCount)
	req.Len(read.MessageIDs, 2)
}

func Test_MessageRead_Already_Read_Skips_Fanout(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := uuid.NewString()
	reader := uuid.NewString()
	f.allowSendFanout()

	sent, err := f.handlers.MessageSend(context.Background(), marshal(t, domain.MessageSendPayload{
		FromUserID: alice, ToUserID: reader, Content: "hello",
	}))
	req.NoError(err)
	messageID := sent.(sendResponse).MessageID

	f.emitter.EXPECT().EmitToUser(gomock.Any(), alice, domain.EventMessageRead, gomock.Any())
	_, err = f.handlers.MessageRead(context.Background(), marshal(t, domain.MessageReadPayload{
		UserID: reader, MessageIDs: []string{messageID},
	}))
	req.NoError(err)

	// When marking the same message again, nobody is notified
	response, err := f.handlers.MessageRead(context.Background(), marshal(t, domain.MessageReadPayload{
		UserID: reader, MessageIDs: []string{messageID},
	}))
	req.NoError(err)
	req.Equal(0, response.(readResponse).ModifiedCount)
}

func Test_Typing_Relays_To_Recipient_Only(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := uuid.NewString()
	bob := uuid.NewString()

	f.emitter.EXPECT().
		EmitToUser(gomock.Any(), bob, domain.EventTypingStart, gomock.Any()).
		Do(func(_ context.Context, _, _ string, payload any) {
			event := payload.(domain.TypingEvent)
			req.Equal(alice, event.From)
			req.Equal("alice", event.Username)
		})

	response, err := f.handlers.TypingStart(context.Background(), marshal(t, domain.TypingPayload{
		FromUserID: alice, ToUserID: bob, Username: "alice",
	}))
	req.NoError(err)
	req.True(response.(okResponse).Success)

	f.emitter.EXPECT().EmitToUser(gomock.Any(), bob, domain.EventTypingStop, gomock.Any())
	response, err = f.handlers.TypingStop(context.Background(), marshal(t, domain.TypingPayload{
		FromUserID: alice, ToUserID: bob,
	}))
	req.NoError(err)
	req.True(response.(okResponse).Success)
}

func Test_Typing_Invalid_Payload_Is_Rejected_Quietly(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// No emitter expectations: invalid typing must not relay
	response, err := f.handlers.TypingStart(context.Background(), marshal(t, domain.TypingPayload{
		FromUserID: uuid.NewString(),
	}))

	req.NoError(err)
	failure := response.(failureResponse)
	req.False(failure.Success)
	req.Equal("Validation failed", failure.Error)
	// Quiet topics omit field details
	req.Empty(failure.Details)
}

func Test_PresenceConnect_Broadcasts_Only_On_First_Connection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := uuid.NewString()

	// First connection announces the user and snapshots the roster
	f.emitter.EXPECT().Broadcast(gomock.Any(), domain.EventUserOnline, domain.PresenceEvent{
		UserID: alice, Username: "alice",
	})
	f.emitter.EXPECT().EmitToUser(gomock.Any(), alice, domain.EventUsersOnline, gomock.Any())

	response, err := f.handlers.PresenceConnect(context.Background(), marshal(t, domain.PresenceConnectPayload{
		UserID: alice, ConnectionID: "conn-1", Username: "alice", Name: "Alice",
	}))
	req.NoError(err)
	connect := response.(connectResponse)
	req.True(connect.IsFirstConnection)
	req.Contains(connect.OnlineUserIDs, alice)

	// Second connection only refreshes the snapshot
	f.emitter.EXPECT().EmitToUser(gomock.Any(), alice, domain.EventUsersOnline, gomock.Any())

	response, err = f.handlers.PresenceConnect(context.Background(), marshal(t, domain.PresenceConnectPayload{
		UserID: alice, ConnectionID: "conn-2", Username: "alice", Name: "Alice",
	}))
	req.NoError(err)
	req.False(response.(connectResponse).IsFirstConnection)
}

func Test_PresenceDisconnect_Broadcasts_Only_On_Last_Connection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := uuid.NewString()
	f.registry.AddConnection(alice, "conn-1")
	f.registry.AddConnection(alice, "conn-2")

	// Dropping one of two connections stays silent
	response, err := f.handlers.PresenceDisconnect(context.Background(), marshal(t, domain.PresenceDisconnectPayload{
		UserID: alice, ConnectionID: "conn-1", Username: "alice",
	}))
	req.NoError(err)
	req.False(response.(disconnectResponse).WasLastConnection)

	// Dropping the last one announces the offline transition
	f.emitter.EXPECT().Broadcast(gomock.Any(), domain.EventUserOffline, domain.PresenceEvent{
		UserID: alice, Username: "alice",
	})
	response, err = f.handlers.PresenceDisconnect(context.Background(), marshal(t, domain.PresenceDisconnectPayload{
		UserID: alice, ConnectionID: "conn-2", Username: "alice",
	}))
	req.NoError(err)
	req.True(response.(disconnectResponse).WasLastConnection)
}
