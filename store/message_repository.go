// Package store persists chat messages in BadgerDB.
// It is the durable, insert-ordered log the sessions reconcile against.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"chat-app/domain"

	"github.com/dgraph-io/badger/v4"
)

const idSequenceKey = "seq:message-id"

// storedMessage is the JSON value persisted per key.
type storedMessage struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	Room      string    `json:"room"`
	Body      string    `json:"body"`
	At        time.Time `json:"at"`
}

// MessageRepository stores messages in BadgerDB.
// The key is formatted as "msg:{room}:{timestamp_padded}:{id}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Break nanosecond ties with the store-assigned id.
type MessageRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(idSequenceKey), 128)
	if err != nil {
		return nil, fmt.Errorf("message id sequence: %w", err)
	}
	return &MessageRepository{db: db, seq: seq, log: log}, nil
}

// Close releases the unused part of the id sequence lease.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

// Insert assigns the next monotonic id, persists the message, and returns the
// stored message. The timestamp defaults to now when the caller left it zero.
func (m *MessageRepository) Insert(message domain.Message) (domain.Message, error) {
	next, err := m.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("next message id: %w", err)
	}
	// Sequence values start at 0; ids start at 1.
	message.ID = int64(next) + 1
	if message.At.IsZero() {
		message.At = time.Now().UTC()
	}

	value, err := json.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode message: %w", err)
	}
	key := messageKey(message.Room, message.At, message.ID)
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("store message: %w", err)
	}
	return message, nil
}

// SelectAll returns every message of a room ordered by timestamp ascending.
// Thanks to the padded timestamp in the key, a forward prefix scan yields the
// messages already sorted.
func (m *MessageRepository) SelectAll(room string) ([]domain.Message, error) {
	var values [][]byte
	prefix := roomPrefix(room)
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				values = append(values, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	return decodeAll(values)
}

// Latest returns the most recent message of a room, or false when the room is
// empty. Used by the bots, which only ever look at the tail of the log.
func (m *MessageRepository) Latest(room string) (domain.Message, bool, error) {
	var value []byte
	prefix := roomPrefix(room)
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible timestamp, then step back.
		seekKey := append(append([]byte(nil), prefix...), []byte("9999999999999999999")...)
		it.Seek(seekKey)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		return it.Item().Value(func(v []byte) error {
			value = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("latest message: %w", err)
	}
	if value == nil {
		return domain.Message{}, false, nil
	}
	var sm storedMessage
	if err := json.Unmarshal(value, &sm); err != nil {
		return domain.Message{}, false, fmt.Errorf("decode message: %w", err)
	}
	return toMessage(sm), true, nil
}

// DeleteAll removes every message of a room. The id sequence is left alone so
// ids stay monotonic across a clear.
func (m *MessageRepository) DeleteAll(room string) error {
	var keys [][]byte
	prefix := roomPrefix(room)
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan messages: %w", err)
	}

	batch := m.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range keys {
		if err := batch.Delete(key); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	m.log.Info("Cleared room", "room", room, "deleted", len(keys))
	return nil
}

// roomKey escapes the room identifier so a ":" inside a room name cannot
// collide with the key separators (room "a" must never scan room "a:b").
func roomKey(room string) string {
	return url.QueryEscape(room)
}

func roomPrefix(room string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", roomKey(room)))
}

func messageKey(room string, at time.Time, id int64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%d", roomKey(room), at.UnixNano(), id))
}

func decodeAll(values [][]byte) ([]domain.Message, error) {
	messages := make([]domain.Message, 0, len(values))
	for _, value := range values {
		var sm storedMessage
		if err := json.Unmarshal(value, &sm); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, toMessage(sm))
	}
	return messages, nil
}

func fromMessage(message domain.Message) storedMessage {
	return storedMessage(message)
}

func toMessage(sm storedMessage) domain.Message {
	return domain.Message(sm)
}
