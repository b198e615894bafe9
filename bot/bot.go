// Package bot implements the auxiliary chat bots: a fixed-interval polling
// loop that answers the most recent public message of a room. The only state
// carried between cycles is the id of the last message answered.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-app/contract"
	"chat-app/domain"
	"chat-app/encryption"
)

// Responder produces a reply to the latest observed message.
type Responder interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// Runner polls the store and inserts replies. It implements contract.Worker
// and runs under the supervisor; a failed cycle is skipped, never fatal.
type Runner struct {
	store     contract.MessageStore
	responder Responder
	name      string
	room      string
	interval  time.Duration
	log       *slog.Logger

	lastResponded int64
}

func NewRunner(store contract.MessageStore, responder Responder, name, room string,
	interval time.Duration, log *slog.Logger) *Runner {
	return &Runner{
		store:     store,
		responder: responder,
		name:      name,
		room:      room,
		interval:  interval,
		log:       log,
	}
}

// Run polls until the context is canceled (process interrupt). Store or
// endpoint failures skip the cycle with a warning; they never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Bot started", "name", r.name, "room", r.room, "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Bot stopped", "name", r.name)
			return nil
		case <-ticker.C:
			if err := r.cycle(ctx); err != nil {
				r.log.Warn("Bot cycle skipped", "name", r.name, "error", err)
			}
		}
	}
}

// cycle answers the latest message at most once.
func (r *Runner) cycle(ctx context.Context) error {
	latest, ok, err := r.store.Latest(r.room)
	if err != nil {
		return fmt.Errorf("fetch latest: %w", err)
	}
	if !ok || latest.ID == r.lastResponded {
		return nil
	}
	// Never answer ourselves, and never peek at private conversations.
	if latest.Sender == r.name || latest.Private() {
		r.lastResponded = latest.ID
		return nil
	}

	body := encryption.Decrypt(latest.Body, encryption.DeriveKey(latest.Sender, latest.Recipient))
	reply, err := r.responder.Reply(ctx, fmt.Sprintf("%s: %s", latest.Sender, body))
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		r.lastResponded = latest.ID
		return nil
	}

	sealed, err := encryption.Encrypt(reply, encryption.DeriveKey(r.name, ""))
	if err != nil {
		return fmt.Errorf("encrypt reply: %w", err)
	}
	if _, err := r.store.Insert(domain.Message{
		Sender: r.name,
		Room:   r.room,
		Body:   sealed,
		At:     time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}

	r.lastResponded = latest.ID
	r.log.Info("Replied", "name", r.name, "to", latest.Sender, "id", latest.ID)
	return nil
}
