// Package event defines the typed events the transport pushes into a session
// loop. Modeling the pub/sub callbacks as an explicit event stream preserves
// delivery order without hidden re-entrancy.
package event

import "chat-app/domain"

type SessionEvent interface {
	sessionEvent()
}

// Insert carries a newly persisted message observed on the live channel.
type Insert struct {
	Message domain.Message
}

func (Insert) sessionEvent() {}

// PresenceSync signals that the presence registry changed. The session
// queries the subscription's snapshot on receipt.
type PresenceSync struct{}

func (PresenceSync) sessionEvent() {}
