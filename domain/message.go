// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import "time"

// Message represents an immutable chat event. The ID is assigned by the store
// in insertion order. An empty Recipient means the message is public.
type Message struct {
	ID        int64
	Sender    string
	Recipient string
	Room      string
	Body      string
	At        time.Time
}

// Private reports whether the message is addressed to a single participant.
func (m Message) Private() bool {
	return m.Recipient != ""
}

// VisibleTo reports whether viewer may observe the message.
// Public messages are visible to everyone; private messages only to the
// sender and the recipient. The same predicate applies to the bulk snapshot
// and to every live insert event.
func (m Message) VisibleTo(viewer string) bool {
	return m.Recipient == "" || m.Recipient == viewer || m.Sender == viewer
}

// Before orders messages by timestamp, ties broken by store id.
func (m Message) Before(other Message) bool {
	if m.At.Equal(other.At) {
		return m.ID < other.ID
	}
	return m.At.Before(other.At)
}
