package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_MarkRead_Groups_Message_IDs_By_Sender(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	log := slog.Default()

	messages := repositories.NewMessageRepository(db, log, nil)
	service := NewReadService(log, messages)

	alice := uuid.NewString()
	bob := uuid.NewString()
	reader := uuid.NewString()
	at := time.Now().UTC()

	fromAlice1 := domain.Message{ID: uuid.New(), From: alice, To: reader, Content: "a1", CreatedAt: at}
	fromAlice2 := domain.Message{ID: uuid.New(), From: alice, To: reader, Content: "a2", CreatedAt: at.Add(time.Second)}
	fromBob := domain.Message{ID: uuid.New(), From: bob, To: reader, Content: "b1", CreatedAt: at}
	for _, message := range []domain.Message{fromAlice1, fromAlice2, fromBob} {
		req.NoError(messages.Create(message))
	}

	// When the reader marks all three
	ids := []string{fromAlice1.ID.String(), fromAlice2.ID.String(), fromBob.ID.String()}
	modified, bySender, err := service.MarkRead(context.Background(), reader, ids)

	// Then every message counts and each sender gets its own group
	req.NoError(err)
	req.Equal(3, modified)
	req.Len(bySender, 2)
	req.ElementsMatch([]string{fromAlice1.ID.String(), fromAlice2.ID.String()}, bySender[alice])
	req.ElementsMatch([]string{fromBob.ID.String()}, bySender[bob])
}

func Test_MarkRead_Skips_Messages_Owned_By_Someone_Else(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	log := slog.Default()

	messages := repositories.NewMessageRepository(db, log, nil)
	service := NewReadService(log, messages)

	alice := uuid.NewString()
	reader := uuid.NewString()
	other := uuid.NewString()
	at := time.Now().UTC()

	mine := domain.Message{ID: uuid.New(), From: alice, To: reader, Content: "mine", CreatedAt: at}
	theirs := domain.Message{ID: uuid.New(), From: alice, To: other, Content: "theirs", CreatedAt: at}
	req.NoError(messages.Create(mine))
	req.NoError(messages.Create(theirs))

	modified, bySender, err := service.MarkRead(context.Background(), reader, []string{mine.ID.String(), theirs.ID.String()})
	req.NoError(err)
	req.Equal(1, modified)
	req.ElementsMatch([]string{mine.ID.String()}, bySender[alice])
}

func Test_MarkRead_Nothing_Modified_Means_No_Fanout_Targets(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	log := slog.Default()

	messages := repositories.NewMessageRepository(db, log, nil)
	service := NewReadService(log, messages)

	alice := uuid.NewString()
	reader := uuid.NewString()
	message := domain.Message{ID: uuid.New(), From: alice, To: reader, Content: "hello", CreatedAt: time.Now().UTC()}
	req.NoError(messages.Create(message))

	// Given the message is already read
	_, _, err := service.MarkRead(context.Background(), reader, []string{message.ID.String()})
	req.NoError(err)

	// When marking it again
	modified, bySender, err := service.MarkRead(context.Background(), reader, []string{message.ID.String()})

	// Then nothing changed and nobody is notified
	req.NoError(err)
	req.Equal(0, modified)
	req.Nil(bySender)
}
