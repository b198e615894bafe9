//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-app/domain"
	"chat-app/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming in
// the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// MessageStore is the durable insert-ordered message log.
// Failures are returned as-is; the core never retries them.
type MessageStore interface {
	// SelectAll returns every message of a room ordered by timestamp
	// ascending, ids breaking ties.
	SelectAll(room string) ([]domain.Message, error)
	// Insert assigns the next monotonic id and persists the message.
	// The stored message (with its id) is returned.
	Insert(message domain.Message) (domain.Message, error)
	// DeleteAll removes every message of a room (the clear-chat operation).
	DeleteAll(room string) error
	// Latest returns the most recent message of a room, or false when the
	// room is empty.
	Latest(room string) (domain.Message, bool, error)
}

// Transport is the live pub/sub channel between connected participants.
type Transport interface {
	// Subscribe opens one connection to a room's channel. The presence key
	// is the viewer's identifier.
	Subscribe(ctx context.Context, room, presenceKey string) (Subscription, error)
	// PublishInsert announces a persisted message to every subscriber of its
	// room.
	PublishInsert(message domain.Message) error
}

// Subscription is one connection to a room's live channel. Events are
// delivered on a single channel in transport order.
type Subscription interface {
	Events() <-chan event.SessionEvent
	// Track publishes or overwrites this connection's presence record.
	Track(record domain.PresenceRecord) error
	// Untrack removes this connection's presence record.
	Untrack() error
	// PresenceSnapshot returns the current registry, keyed by connection id.
	PresenceSnapshot() map[string][]domain.PresenceRecord
	Close() error
}
