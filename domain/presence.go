package domain

import "time"

// PresenceRecord is the ephemeral per-connection state published on the live
// channel. It is never persisted; a connection overwrites its own record on
// every typing transition and removes it on leave.
type PresenceRecord struct {
	Username    string    `json:"username" validate:"required"`
	IsTyping    bool      `json:"is_typing"`
	LastUpdated time.Time `json:"last_updated"`
}
