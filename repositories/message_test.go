package repositories

import (
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessage(from, to, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		From:      from,
		To:        to,
		Content:   content,
		CreatedAt: at,
	}
}

func Test_Create_And_List_By_Conversation(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewMessageRepository(db, slog.Default(), nil)

	// Given messages flowing in both directions of one pair
	alice := uuid.NewString()
	bob := uuid.NewString()
	at := time.Now().UTC()

	req.NoError(repository.Create(newMessage(alice, bob, "first", at)))
	req.NoError(repository.Create(newMessage(bob, alice, "second", at.Add(time.Minute))))
	req.NoError(repository.Create(newMessage(alice, bob, "third", at.Add(2*time.Minute))))

	// When listing the conversation
	fetched, _, err := repository.ListByConversation(domain.ConversationKey(alice, bob), nil)

	// Then both directions share the record, newest first
	req.NoError(err)
	req.Len(fetched, 3)
	req.Equal("third", fetched[0].Content)
	req.Equal("first", fetched[2].Content)
}

func Test_List_By_Conversation_With_Limit_And_Cursor(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	limit := 2
	repository := NewMessageRepository(db, slog.Default(), &limit)

	alice := uuid.NewString()
	bob := uuid.NewString()
	at := time.Now().UTC()

	for i, content := range []string{"one", "two", "three"} {
		req.NoError(repository.Create(newMessage(alice, bob, content, at.Add(time.Duration(i)*time.Minute))))
	}

	conversationKey := domain.ConversationKey(alice, bob)

	// When fetching the first page
	firstPage, cursor, err := repository.ListByConversation(conversationKey, nil)

	// Then it is capped at the limit and carries a cursor
	req.NoError(err)
	req.Len(firstPage, limit)
	req.NotNil(cursor)

	// And the cursor resumes right after the first page
	secondPage, _, err := repository.ListByConversation(conversationKey, cursor)
	req.NoError(err)
	req.Len(secondPage, 1)
	req.Equal("one", secondPage[0].Content)
}

func Test_MarkRead_Only_Unread_Messages_Addressed_To_User(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewMessageRepository(db, slog.Default(), nil)

	alice := uuid.NewString()
	bob := uuid.NewString()
	carol := uuid.NewString()
	at := time.Now().UTC()

	toBob := newMessage(alice, bob, "for bob", at)
	toCarol := newMessage(alice, carol, "for carol", at)
	req.NoError(repository.Create(toBob))
	req.NoError(repository.Create(toCarol))

	// When bob marks both IDs, only the message addressed to him counts
	modified, err := repository.MarkRead(bob, []string{toBob.ID.String(), toCarol.ID.String()}, at.Add(time.Second))
	req.NoError(err)
	req.Equal(1, modified)

	// And a second pass modifies nothing
	modified, err = repository.MarkRead(bob, []string{toBob.ID.String(), toCarol.ID.String()}, at.Add(2*time.Second))
	req.NoError(err)
	req.Equal(0, modified)
}

func Test_MarkRead_Unknown_IDs_Are_Silently_Excluded(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewMessageRepository(db, slog.Default(), nil)

	modified, err := repository.MarkRead(uuid.NewString(), []string{uuid.NewString()}, time.Now().UTC())
	req.NoError(err)
	req.Equal(0, modified)
}

func Test_GetOwnedByIDs_Filters_By_Recipient(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewMessageRepository(db, slog.Default(), nil)

	alice := uuid.NewString()
	bob := uuid.NewString()
	carol := uuid.NewString()
	at := time.Now().UTC()

	toBob := newMessage(alice, bob, "for bob", at)
	toCarol := newMessage(alice, carol, "for carol", at)
	req.NoError(repository.Create(toBob))
	req.NoError(repository.Create(toCarol))

	owned, err := repository.GetOwnedByIDs(bob, []string{toBob.ID.String(), toCarol.ID.String()})
	req.NoError(err)
	req.Len(owned, 1)
	req.Equal(toBob.ID, owned[0].ID)
	req.Equal(alice, owned[0].From)
}

func Test_MarkRead_Stamps_ReadAt(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewMessageRepository(db, slog.Default(), nil)

	alice := uuid.NewString()
	bob := uuid.NewString()
	at := time.Now().UTC()
	readAt := at.Add(time.Minute)

	message := newMessage(alice, bob, "hello", at)
	req.NoError(repository.Create(message))

	modified, err := repository.MarkRead(bob, []string{message.ID.String()}, readAt)
	req.NoError(err)
	req.Equal(1, modified)

	owned, err := repository.GetOwnedByIDs(bob, []string{message.ID.String()})
	req.NoError(err)
	req.Len(owned, 1)
	req.True(owned[0].Read)
	req.NotNil(owned[0].ReadAt)
	req.Equal(readAt.Unix(), owned[0].ReadAt.Unix())
}
