package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"chat-app/contract"
	"chat-app/domain"
	"chat-app/domain/event"
	apperrors "chat-app/errors"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATS implements the live channel on a NATS server. Inserts travel on
// chat.<room>.messages, presence deltas on chat.<room>.presence. Presence is
// rebroadcast state: every subscriber folds the deltas into its own local
// registry, so the server holds nothing.
type NATS struct {
	conn *nats.Conn
	log  *slog.Logger
}

func messageSubject(room string) string {
	return fmt.Sprintf("chat.%s.messages", room)
}

func presenceSubject(room string) string {
	return fmt.Sprintf("chat.%s.presence", room)
}

func NewNATS(url string, log *slog.Logger) (*NATS, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &NATS{conn: conn, log: log}, nil
}

func (n *NATS) Close() {
	n.conn.Close()
}

func (n *NATS) PublishInsert(message domain.Message) error {
	data, err := json.Marshal(fromMessage(message))
	if err != nil {
		return fmt.Errorf("encode insert: %w", err)
	}
	if err := n.conn.Publish(messageSubject(message.Room), data); err != nil {
		return fmt.Errorf("publish insert: %w", err)
	}
	return nil
}

// Subscribe opens one connection to the room. The new connection announces
// itself so that tracking peers re-publish their presence records and the
// local registry converges.
func (n *NATS) Subscribe(_ context.Context, room, presenceKey string) (contract.Subscription, error) {
	sub := &natsSub{
		parent:      n,
		log:         n.log,
		room:        room,
		connID:      uuid.NewString(),
		presenceKey: presenceKey,
		events:      make(chan event.SessionEvent, defaultEventBuffer),
		registry:    make(map[string][]domain.PresenceRecord),
	}

	msgSub, err := n.conn.Subscribe(messageSubject(room), sub.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("subscribe messages: %w", err)
	}
	presSub, err := n.conn.Subscribe(presenceSubject(room), sub.handlePresence)
	if err != nil {
		_ = msgSub.Unsubscribe()
		return nil, fmt.Errorf("subscribe presence: %w", err)
	}
	sub.msgSub = msgSub
	sub.presSub = presSub

	if err := sub.publishDelta(presenceDelta{Conn: sub.connID, Announce: true}); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return sub, nil
}

type natsSub struct {
	parent      *NATS
	log         *slog.Logger
	room        string
	connID      string
	presenceKey string
	events      chan event.SessionEvent

	msgSub  *nats.Subscription
	presSub *nats.Subscription

	mu       sync.Mutex
	registry map[string][]domain.PresenceRecord
	record   *domain.PresenceRecord
	closed   bool
}

func (s *natsSub) Events() <-chan event.SessionEvent {
	return s.events
}

// Track publishes this connection's record. The delta echoes back through the
// subscription like everyone else's, so the local registry and the
// PresenceSync event follow the same path for own and remote updates.
func (s *natsSub) Track(record domain.PresenceRecord) error {
	// The presence key is the viewer's identity; records published on this
	// connection always carry it.
	record.Username = s.presenceKey
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.ErrSubscriptionClosed
	}
	s.record = &record
	s.mu.Unlock()
	return s.publishDelta(presenceDelta{Conn: s.connID, Record: &record})
}

func (s *natsSub) Untrack() error {
	s.mu.Lock()
	s.record = nil
	s.mu.Unlock()
	return s.publishDelta(presenceDelta{Conn: s.connID, Leaving: true})
}

func (s *natsSub) PresenceSnapshot() map[string][]domain.PresenceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[string][]domain.PresenceRecord, len(s.registry))
	for conn, records := range s.registry {
		snapshot[conn] = append([]domain.PresenceRecord(nil), records...)
	}
	return snapshot
}

func (s *natsSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.record = nil
	s.mu.Unlock()

	if s.msgSub != nil {
		_ = s.msgSub.Unsubscribe()
	}
	if s.presSub != nil {
		_ = s.presSub.Unsubscribe()
	}
	close(s.events)
	return nil
}

func (s *natsSub) handleMessage(m *nats.Msg) {
	var wm wireMessage
	if err := json.Unmarshal(m.Data, &wm); err != nil {
		s.log.Warn("Dropping malformed insert payload", "room", s.room, "error", err)
		return
	}
	if err := validate.Struct(wm); err != nil {
		s.log.Warn("Dropping invalid insert payload", "room", s.room, "error", err)
		return
	}
	s.deliver(event.Insert{Message: toMessage(wm)})
}

func (s *natsSub) handlePresence(m *nats.Msg) {
	var delta presenceDelta
	if err := json.Unmarshal(m.Data, &delta); err != nil {
		s.log.Warn("Dropping malformed presence payload", "room", s.room, "error", err)
		return
	}
	if err := validate.Struct(delta); err != nil {
		s.log.Warn("Dropping invalid presence payload", "room", s.room, "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := false
	switch {
	case delta.Leaving:
		if _, ok := s.registry[delta.Conn]; ok {
			delete(s.registry, delta.Conn)
			changed = true
		}
	case delta.Record != nil:
		s.registry[delta.Conn] = []domain.PresenceRecord{*delta.Record}
		changed = true
	}
	reannounce := delta.Announce && delta.Conn != s.connID && s.record != nil
	var own domain.PresenceRecord
	if reannounce {
		own = *s.record
	}
	s.mu.Unlock()

	if reannounce {
		if err := s.publishDelta(presenceDelta{Conn: s.connID, Record: &own}); err != nil {
			s.log.Warn("Presence re-announce failed", "room", s.room, "error", err)
		}
	}
	if changed {
		s.deliver(event.PresenceSync{})
	}
}

func (s *natsSub) publishDelta(delta presenceDelta) error {
	data, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("encode presence delta: %w", err)
	}
	if err := s.parent.conn.Publish(presenceSubject(s.room), data); err != nil {
		return fmt.Errorf("publish presence delta: %w", err)
	}
	return nil
}

// deliver pushes an event without blocking; a full buffer drops the event,
// same best-effort contract as the in-process bus.
func (s *natsSub) deliver(evt event.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- evt:
	default:
		s.log.Warn("Subscription buffer full, dropping event", "room", s.room, "conn", s.connID)
	}
}
