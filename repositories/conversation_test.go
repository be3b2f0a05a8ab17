package repositories

import (
	"testing"
	"time"

	"chat-relay/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Upsert_Creates_Then_Updates_Same_Record_For_Both_Directions(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db)

	alice := uuid.NewString()
	bob := uuid.NewString()
	firstAt := time.Now().UTC()
	firstID := uuid.New()

	// Given alice opens the conversation
	created, err := repository.Upsert(alice, bob, firstID, "hello bob", firstAt)
	req.NoError(err)
	req.Equal(domain.ConversationKey(alice, bob), created.Key)
	req.Equal(firstID, created.LastMessageID)
	req.Equal(firstAt.Unix(), created.CreatedAt.Unix())

	// When bob replies with the participants reversed
	secondAt := firstAt.Add(time.Minute)
	secondID := uuid.New()
	updated, err := repository.Upsert(bob, alice, secondID, "hi alice", secondAt)
	req.NoError(err)

	// Then the same record was updated, keeping its creation time
	req.Equal(created.Key, updated.Key)
	req.Equal(secondID, updated.LastMessageID)
	req.Equal("hi alice", updated.LastMessagePreview)
	req.Equal(firstAt.Unix(), updated.CreatedAt.Unix())
}

func Test_Get_Returns_Stored_Conversation(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db)

	alice := uuid.NewString()
	bob := uuid.NewString()
	at := time.Now().UTC()
	messageID := uuid.New()

	_, err := repository.Upsert(alice, bob, messageID, "hello", at)
	req.NoError(err)

	fetched, err := repository.Get(domain.ConversationKey(alice, bob))
	req.NoError(err)
	req.Equal(messageID, fetched.LastMessageID)
	req.Equal("hello", fetched.LastMessagePreview)
	req.ElementsMatch([]string{alice, bob}, fetched.Participants[:])
}
