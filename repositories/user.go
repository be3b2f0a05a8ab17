//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-relay/domain"
	apperrors "chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	Get(userID string) (domain.User, error)
	Put(user domain.User) error
	UpdateLastSeen(userID string, at time.Time) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

type storedUser struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Name     string     `json:"name"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

func (u UserRepository) Get(userID string) (domain.User, error) {
	var stored storedUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return apperrors.ErrUserNotFound
			}
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &stored)
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return domain.User(stored), nil
}

func (u UserRepository) Put(user domain.User) error {
	bytes, err := json.Marshal(storedUser(user))
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), bytes)
	})
}

// UpdateLastSeen stamps the user's record with the moment its last
// connection went away. An absent user is a no-op: there is nothing to
// stamp and disconnect handling must not fail over it.
func (u UserRepository) UpdateLastSeen(userID string, at time.Time) error {
	return withConflictRetry(func() error {
		return u.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(userKey(userID))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil
				}
				return err
			}
			var stored storedUser
			err = item.Value(func(value []byte) error {
				return json.Unmarshal(value, &stored)
			})
			if err != nil {
				return err
			}
			stored.LastSeen = &at
			bytes, err := json.Marshal(stored)
			if err != nil {
				return fmt.Errorf("marshal user: %w", err)
			}
			return txn.Set(userKey(userID), bytes)
		})
	})
}

func userKey(userID string) []byte {
	return []byte("user:" + userID)
}
