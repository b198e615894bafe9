// Package session reconciles the durable message log with the live event
// stream into one deduplicated, time-ordered, visibility-filtered view per
// participant, and owns the session lifecycle around it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-app/contract"
	"chat-app/domain"
	"chat-app/domain/event"
	"chat-app/encryption"
	apperrors "chat-app/errors"
	"chat-app/presence"

	"github.com/samber/lo"
)

// Phase is the session lifecycle state.
type Phase int

const (
	Disconnected Phase = iota
	Joining
	Synced
)

func (p Phase) String() string {
	switch p {
	case Joining:
		return "joining"
	case Synced:
		return "synced"
	default:
		return "disconnected"
	}
}

// Session owns one participant's live view of a room: the ordered message
// sequence, the presence roster, and the lifecycle phase. Sessions share
// nothing with each other except the store and the transport; all internal
// state is guarded by one mutex because the transport loop, the debounce
// timer, and the caller touch it from different goroutines.
type Session struct {
	log       *slog.Logger
	username  string
	room      string
	store     contract.MessageStore
	transport contract.Transport
	quiet     time.Duration

	mu        sync.Mutex
	phase     Phase
	sub       contract.Subscription
	debouncer *presence.Debouncer
	messages  []domain.Message
	seen      map[int64]struct{}
	roster    presence.Roster

	// updates coalesces change notifications for the presentation layer.
	updates chan struct{}
}

func New(username, room string, store contract.MessageStore, transport contract.Transport,
	quiet time.Duration, log *slog.Logger) *Session {
	return &Session{
		log:       log,
		username:  username,
		room:      room,
		store:     store,
		transport: transport,
		quiet:     quiet,
		seen:      make(map[int64]struct{}),
		updates:   make(chan struct{}, 1),
	}
}

// Join moves the session from Disconnected to Synced: it opens the live
// subscription first, then issues the bulk fetch. Insert events delivered
// while the fetch is in flight wait in the subscription buffer and are merged
// by the Run loop, so the race between the two sources loses nothing and
// applies nothing twice. Presence is tracked only once Synced.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != Disconnected {
		s.mu.Unlock()
		return apperrors.ErrAlreadyJoined
	}
	s.phase = Joining
	s.mu.Unlock()

	sub, err := s.transport.Subscribe(ctx, s.room, s.username)
	if err != nil {
		s.reset()
		return fmt.Errorf("subscribe: %w", err)
	}

	history, err := s.store.SelectAll(s.room)
	if err != nil {
		_ = sub.Close()
		s.reset()
		return fmt.Errorf("bulk fetch: %w", err)
	}

	debouncer := presence.NewDebouncer(sub, s.username, s.quiet, s.log)

	s.mu.Lock()
	if s.phase != Joining {
		// Leave landed while the bulk fetch was in flight; the session must
		// stay Disconnected instead of being resurrected.
		s.mu.Unlock()
		_ = sub.Close()
		return apperrors.ErrSessionClosed
	}
	s.sub = sub
	s.debouncer = debouncer
	for _, message := range history {
		s.merge(message)
	}
	s.phase = Synced
	s.mu.Unlock()
	s.notify()

	if err := sub.Track(domain.PresenceRecord{
		Username:    s.username,
		IsTyping:    false,
		LastUpdated: time.Now().UTC(),
	}); err != nil {
		s.log.Warn("Initial presence track failed", "room", s.room, "error", err)
	}

	s.log.Info("Session synced", "user", s.username, "room", s.room, "history", len(history))
	return nil
}

// Run consumes transport events until the subscription closes or the context
// is canceled. It is the session's single consuming loop; event order is the
// transport's delivery order, and merge re-establishes timestamp order.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub == nil {
		return apperrors.ErrNotSynced
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Session loop stopped", "user", s.username)
			return nil
		case evt, ok := <-sub.Events():
			if !ok {
				return nil
			}
			s.consume(evt)
		}
	}
}

// consume applies one transport event. Events are ignored once the session
// left Synced: teardown drops buffered unmerged events, it never applies them
// to a dead session.
func (s *Session) consume(evt event.SessionEvent) {
	switch e := evt.(type) {
	case event.Insert:
		s.mu.Lock()
		if s.phase != Synced {
			s.mu.Unlock()
			return
		}
		changed := s.merge(e.Message)
		s.mu.Unlock()
		if changed {
			s.notify()
		}
	case event.PresenceSync:
		s.mu.Lock()
		sub := s.sub
		synced := s.phase == Synced
		s.mu.Unlock()
		if !synced || sub == nil {
			return
		}
		roster := presence.Aggregate(sub.PresenceSnapshot(), s.username)
		s.mu.Lock()
		if s.phase == Synced {
			s.roster = roster
		}
		s.mu.Unlock()
		s.notify()
	}
}

// merge inserts a message into the ordered sequence. Returns false when the
// message is invisible to this viewer or already present (an insert event for
// a known id is a no-op). Caller holds the lock.
func (s *Session) merge(message domain.Message) bool {
	if !message.VisibleTo(s.username) {
		return false
	}
	if _, dup := s.seen[message.ID]; dup {
		return false
	}
	s.seen[message.ID] = struct{}{}

	i := sort.Search(len(s.messages), func(i int) bool {
		return message.Before(s.messages[i])
	})
	s.messages = append(s.messages, domain.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = message
	return true
}

// Send encrypts and persists a message. An empty recipient broadcasts to the
// room. Refused until the session is Synced, so the durable insert cannot
// race ahead of the local snapshot.
func (s *Session) Send(recipient, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return apperrors.ErrEmptyMessage
	}
	if s.Phase() != Synced {
		return apperrors.ErrNotSynced
	}

	key := encryption.DeriveKey(s.username, recipient)
	sealed, err := encryption.Encrypt(body, key)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	_, err = s.store.Insert(domain.Message{
		Sender:    s.username,
		Recipient: recipient,
		Room:      s.room,
		Body:      sealed,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// Typing records one local input event; the debouncer turns bursts into
// isTyping transitions.
func (s *Session) Typing() {
	s.mu.Lock()
	debouncer := s.debouncer
	phase := s.phase
	s.mu.Unlock()
	if phase != Synced || debouncer == nil {
		return
	}
	debouncer.Touch()
}

// Clear deletes every message of the room from the durable store and resets
// the local sequence.
func (s *Session) Clear() error {
	if s.Phase() != Synced {
		return apperrors.ErrNotSynced
	}
	if err := s.store.DeleteAll(s.room); err != nil {
		return fmt.Errorf("clear chat: %w", err)
	}
	s.mu.Lock()
	s.messages = nil
	s.seen = make(map[int64]struct{})
	s.mu.Unlock()
	s.notify()
	return nil
}

// Leave tears the session down in a fixed order: pending debounce timer
// first, then presence, then the subscription, then buffered state, so no
// late callback can mutate a dead session.
func (s *Session) Leave() {
	s.mu.Lock()
	if s.phase == Disconnected {
		s.mu.Unlock()
		return
	}
	s.phase = Disconnected
	sub := s.sub
	debouncer := s.debouncer
	s.sub = nil
	s.debouncer = nil
	s.mu.Unlock()

	if debouncer != nil {
		debouncer.Stop()
	}
	if sub != nil {
		if err := sub.Untrack(); err != nil {
			s.log.Warn("Untrack failed", "user", s.username, "error", err)
		}
		_ = sub.Close()
	}

	s.mu.Lock()
	s.roster = presence.Roster{}
	s.mu.Unlock()
	s.log.Info("Session left", "user", s.username, "room", s.room)
}

// Messages returns the visible sequence with bodies decrypted for rendering.
// Payloads that fail to decrypt surface as the sentinel string, never as an
// error.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	snapshot := append([]domain.Message(nil), s.messages...)
	s.mu.Unlock()

	return lo.Map(snapshot, func(m domain.Message, _ int) domain.Message {
		m.Body = encryption.Decrypt(m.Body, encryption.DeriveKey(m.Sender, m.Recipient))
		return m
	})
}

// Roster returns the latest presence aggregation.
func (s *Session) Roster() presence.Roster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return presence.Roster{
		Online: append([]string(nil), s.roster.Online...),
		Typing: append([]string(nil), s.roster.Typing...),
	}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Updates signals the presentation layer that Messages or Roster changed.
// Notifications coalesce; consumers re-query the session state.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) reset() {
	s.mu.Lock()
	s.phase = Disconnected
	s.mu.Unlock()
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
