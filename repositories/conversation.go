//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// conflictRetries bounds optimistic-concurrency retries on Badger
// transaction conflicts. Two senders upserting the same conversation at
// once lose at most this many rounds before the error surfaces.
const conflictRetries = 5

type IConversationRepository interface {
	Upsert(userA, userB string, lastMessageID uuid.UUID, preview string, at time.Time) (domain.Conversation, error)
	Get(conversationKey string) (domain.Conversation, error)
}

type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) ConversationRepository {
	return ConversationRepository{db: db}
}

type storedConversation struct {
	Participants       []string  `json:"participants"`
	LastMessageID      string    `json:"lastMessageId"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Upsert creates or updates the two-party conversation summary. The record
// key is the canonically sorted participant pair, so (A,B) and (B,A) hit
// the same record. Concurrent creation attempts are resolved by retrying
// the read-modify-write on transaction conflict.
func (c ConversationRepository) Upsert(userA, userB string, lastMessageID uuid.UUID, preview string, at time.Time) (domain.Conversation, error) {
	key := []byte("conv:" + domain.ConversationKey(userA, userB))
	participants := []string{userA, userB}
	sort.Strings(participants)

	var conversation domain.Conversation
	err := withConflictRetry(func() error {
		return c.db.Update(func(txn *badger.Txn) error {
			stored := storedConversation{
				Participants: participants,
				CreatedAt:    at,
			}

			item, err := txn.Get(key)
			switch err {
			case nil:
				err = item.Value(func(value []byte) error {
					return json.Unmarshal(value, &stored)
				})
				if err != nil {
					return err
				}
			case badger.ErrKeyNotFound:
				// First message of this pair, create the summary
			default:
				return err
			}

			stored.LastMessageID = lastMessageID.String()
			stored.LastMessagePreview = preview
			stored.LastMessageAt = at

			bytes, err := json.Marshal(stored)
			if err != nil {
				return fmt.Errorf("marshal conversation: %w", err)
			}
			if err := txn.Set(key, bytes); err != nil {
				return err
			}
			conversation = toConversation(domain.ConversationKey(userA, userB), stored)
			return nil
		})
	})
	return conversation, err
}

func (c ConversationRepository) Get(conversationKey string) (domain.Conversation, error) {
	var stored storedConversation
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("conv:" + conversationKey))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &stored)
		})
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(conversationKey, stored), nil
}

func toConversation(key string, stored storedConversation) domain.Conversation {
	conversation := domain.Conversation{
		Key:                key,
		LastMessagePreview: stored.LastMessagePreview,
		LastMessageAt:      stored.LastMessageAt,
		CreatedAt:          stored.CreatedAt,
	}
	if parsed, err := uuid.Parse(stored.LastMessageID); err == nil {
		conversation.LastMessageID = parsed
	}
	if len(stored.Participants) == 2 {
		conversation.Participants = [2]string{stored.Participants[0], stored.Participants[1]}
	}
	return conversation
}

// withConflictRetry reruns fn while Badger reports a serialization
// conflict, so concurrent writers behave as retry-as-update.
func withConflictRetry(fn func() error) error {
	var err error
	for range conflictRetries {
		err = fn()
		if err != badger.ErrConflict {
			return err
		}
	}
	return err
}
