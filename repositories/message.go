//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/domain"
	apperrors "chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	Create(message domain.Message) error
	MarkRead(userID string, messageIDs []string, at time.Time) (int, error)
	GetOwnedByIDs(userID string, messageIDs []string) ([]domain.Message, error)
	ListByConversation(conversationKey string, cursor *string) ([]domain.Message, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// storedMessage is the on-disk JSON shape of a message record.
type storedMessage struct {
	ID        string     `json:"id"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Content   string     `json:"content"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Create persists a message under two keys in a single transaction:
//  1. "msg:{conv_key}:{timestamp_padded}:{uuid}" holds the record. The
//     19-digit zero padding keeps prefix scans in chronological order and
//     the UUID disambiguates two messages landing on the same nanosecond.
//  2. "msgid:{uuid}" points back at the primary key so the read path can
//     resolve a bare message ID.
func (m MessageRepository) Create(message domain.Message) error {
	primaryKey := messageKey(message)
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primaryKey, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(message.ID.String()), primaryKey)
	})
}

// MarkRead flips read=true on the messages among messageIDs that are
// addressed to userID and still unread, and returns how many changed.
// IDs that do not exist, target another user, or were already read are
// silently excluded from the count.
func (m MessageRepository) MarkRead(userID string, messageIDs []string, at time.Time) (int, error) {
	modified := 0
	err := withConflictRetry(func() error {
		modified = 0
		return m.db.Update(func(txn *badger.Txn) error {
			for _, messageID := range messageIDs {
				primaryKey, stored, err := m.getByID(txn, messageID)
				if err != nil {
					if err == apperrors.ErrMessageNotFound {
						continue
					}
					return err
				}
				if stored.To != userID || stored.Read {
					continue
				}
				stored.Read = true
				stored.ReadAt = &at
				bytes, err := json.Marshal(stored)
				if err != nil {
					return fmt.Errorf("marshal message: %w", err)
				}
				if err := txn.Set(primaryKey, bytes); err != nil {
					return err
				}
				modified++
			}
			return nil
		})
	})
	return modified, err
}

// GetOwnedByIDs returns the messages among messageIDs that are addressed
// to userID, resolving each through the msgid index.
func (m MessageRepository) GetOwnedByIDs(userID string, messageIDs []string) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		for _, messageID := range messageIDs {
			_, stored, err := m.getByID(txn, messageID)
			if err != nil {
				if err == apperrors.ErrMessageNotFound {
					continue
				}
				return err
			}
			if stored.To != userID {
				continue
			}
			message, err := toMessage(stored)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	return messages, err
}

// ListByConversation retrieves messages of one conversation using a reverse
// prefix scan, newest first. Thanks to the padded timestamp in the key the
// scan is naturally time-ordered. The returned cursor resumes the scan on
// the next call; collection stops at the configured limitMessages.
func (m MessageRepository) ListByConversation(conversationKey string, cursor *string) ([]domain.Message, *string, error) {
	var byteMessages [][]byte
	var messages []domain.Message
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := "msg:" + conversationKey + ":"
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(byteMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for _, b := range byteMessages {
		var stored storedMessage
		if err = json.Unmarshal(b, &stored); err != nil {
			return nil, nil, err
		}
		message, err := toMessage(stored)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	return messages, &lastKey, nil
}

// getByID resolves a bare message ID through the msgid index and returns
// the primary key plus the decoded record.
func (m MessageRepository) getByID(txn *badger.Txn, messageID string) ([]byte, storedMessage, error) {
	item, err := txn.Get(indexKey(messageID))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, storedMessage{}, apperrors.ErrMessageNotFound
		}
		return nil, storedMessage{}, err
	}
	primaryKey, err := item.ValueCopy(nil)
	if err != nil {
		return nil, storedMessage{}, err
	}
	item, err = txn.Get(primaryKey)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, storedMessage{}, apperrors.ErrMessageNotFound
		}
		return nil, storedMessage{}, err
	}
	var stored storedMessage
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &stored)
	})
	if err != nil {
		return nil, storedMessage{}, err
	}
	return primaryKey, stored, nil
}

func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		domain.ConversationKey(message.From, message.To),
		message.CreatedAt.UnixNano(),
		message.ID,
	))
}

func indexKey(messageID string) []byte {
	return []byte("msgid:" + messageID)
}

func fromMessage(message domain.Message) storedMessage {
	return storedMessage{
		ID:        message.ID.String(),
		From:      message.From,
		To:        message.To,
		Content:   message.Content,
		Read:      message.Read,
		ReadAt:    message.ReadAt,
		CreatedAt: message.CreatedAt,
	}
}

func toMessage(stored storedMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        parsedID,
		From:      stored.From,
		To:        stored.To,
		Content:   stored.Content,
		Read:      stored.Read,
		ReadAt:    stored.ReadAt,
		CreatedAt: stored.CreatedAt,
	}, nil
}
