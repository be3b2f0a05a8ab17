package repositories

import (
	"testing"
	"time"

	"chat-relay/domain"
	apperrors "chat-relay/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Get_Unknown_User_Returns_ErrUserNotFound(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewUserRepository(db)

	_, err := repository.Get(uuid.NewString())
	req.ErrorIs(err, apperrors.ErrUserNotFound)
}

func Test_Put_Then_Get_Round_Trips(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewUserRepository(db)

	user := domain.User{ID: uuid.NewString(), Username: "alice", Name: "Alice"}
	req.NoError(repository.Put(user))

	fetched, err := repository.Get(user.ID)
	req.NoError(err)
	req.Equal(user.Username, fetched.Username)
	req.Equal(user.Name, fetched.Name)
	req.Nil(fetched.LastSeen)
}

func Test_UpdateLastSeen_Stamps_Existing_User(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewUserRepository(db)

	user := domain.User{ID: uuid.NewString(), Username: "bob", Name: "Bob"}
	req.NoError(repository.Put(user))

	at := time.Now().UTC()
	req.NoError(repository.UpdateLastSeen(user.ID, at))

	fetched, err := repository.Get(user.ID)
	req.NoError(err)
	req.NotNil(fetched.LastSeen)
	req.Equal(at.Unix(), fetched.LastSeen.Unix())
}

func Test_UpdateLastSeen_Unknown_User_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewUserRepository(db)

	req.NoError(repository.UpdateLastSeen(uuid.NewString(), time.Now().UTC()))
}
