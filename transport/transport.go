// Package transport implements the live pub/sub channel between connected
// participants: insert announcements and the ephemeral presence registry.
// Two implementations share the same semantics: Bus (in-process) and NATS.
package transport

import (
	"time"

	"chat-app/domain"

	"github.com/go-playground/validator/v10"
)

// Buffer size of a subscription's event channel. Insert events delivered
// while the session is still fetching its bulk snapshot wait here.
const defaultEventBuffer = 256

var validate = validator.New()

// wireMessage is the insert announcement payload. Incoming payloads are
// validated before they reach a session; malformed ones are dropped.
type wireMessage struct {
	ID        int64     `json:"id" validate:"required"`
	Sender    string    `json:"sender" validate:"required"`
	Recipient string    `json:"recipient,omitempty"`
	Room      string    `json:"room" validate:"required"`
	Body      string    `json:"body" validate:"required"`
	At        time.Time `json:"at" validate:"required"`
}

// presenceDelta announces one connection's current record or its departure.
// Announce asks the peers to re-publish their own records so a late joiner
// converges on the full registry.
type presenceDelta struct {
	Conn     string                 `json:"conn" validate:"required"`
	Leaving  bool                   `json:"leaving,omitempty"`
	Announce bool                   `json:"announce,omitempty"`
	Record   *domain.PresenceRecord `json:"record,omitempty" validate:"omitempty"`
}

func fromMessage(message domain.Message) wireMessage {
	return wireMessage(message)
}

func toMessage(wm wireMessage) domain.Message {
	return domain.Message(wm)
}
