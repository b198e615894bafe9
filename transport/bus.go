package transport

import (
	"context"
	"log/slog"
	"sync"

	"chat-app/contract"
	"chat-app/domain"
	"chat-app/domain/event"
	apperrors "chat-app/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Bus is the in-process transport. One Bus value plays the role of the
// pub/sub service; every Subscribe call is one connection. Used by tests and
// single-process runs; semantics match the NATS implementation.
type Bus struct {
	mu    sync.RWMutex
	log   *slog.Logger
	rooms map[string]map[string]*busConn // room -> connection id -> connection
}

func NewBus(log *slog.Logger) *Bus {
	return &Bus{log: log, rooms: make(map[string]map[string]*busConn)}
}

type busConn struct {
	bus         *Bus
	room        string
	id          string
	presenceKey string
	events      chan event.SessionEvent

	mu     sync.Mutex
	record *domain.PresenceRecord
	closed bool
}

func (b *Bus) Subscribe(_ context.Context, room, presenceKey string) (contract.Subscription, error) {
	conn := &busConn{
		bus:         b,
		room:        room,
		id:          uuid.NewString(),
		presenceKey: presenceKey,
		events:      make(chan event.SessionEvent, defaultEventBuffer),
	}
	b.mu.Lock()
	if _, ok := b.rooms[room]; !ok {
		b.rooms[room] = make(map[string]*busConn)
	}
	b.rooms[room][conn.id] = conn
	b.mu.Unlock()
	return conn, nil
}

// PublishInsert delivers the message to every connection of its room,
// including the sender's own (broadcast self, like the original channel).
func (b *Bus) PublishInsert(message domain.Message) error {
	for _, conn := range b.connections(message.Room) {
		conn.deliver(event.Insert{Message: message})
	}
	return nil
}

// presenceChanged emits a PresenceSync to every connection of the room.
func (b *Bus) presenceChanged(room string) {
	for _, conn := range b.connections(room) {
		conn.deliver(event.PresenceSync{})
	}
}

func (b *Bus) connections(room string) []*busConn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.Values(b.rooms[room])
}

func (b *Bus) drop(conn *busConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if members, ok := b.rooms[conn.room]; ok {
		delete(members, conn.id)
		if len(members) == 0 {
			delete(b.rooms, conn.room)
		}
	}
}

func (c *busConn) Events() <-chan event.SessionEvent {
	return c.events
}

func (c *busConn) Track(record domain.PresenceRecord) error {
	// The presence key is the viewer's identity; records published on this
	// connection always carry it.
	record.Username = c.presenceKey
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.ErrSubscriptionClosed
	}
	c.record = &record
	c.mu.Unlock()
	c.bus.presenceChanged(c.room)
	return nil
}

func (c *busConn) Untrack() error {
	c.mu.Lock()
	c.record = nil
	c.mu.Unlock()
	c.bus.presenceChanged(c.room)
	return nil
}

// PresenceSnapshot rebuilds the registry from every live connection of the
// room, keyed by connection id.
func (c *busConn) PresenceSnapshot() map[string][]domain.PresenceRecord {
	snapshot := make(map[string][]domain.PresenceRecord)
	for _, conn := range c.bus.connections(c.room) {
		conn.mu.Lock()
		if conn.record != nil {
			snapshot[conn.id] = []domain.PresenceRecord{*conn.record}
		}
		conn.mu.Unlock()
	}
	return snapshot
}

func (c *busConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.record = nil
	c.mu.Unlock()

	c.bus.drop(c)
	close(c.events)
	c.bus.presenceChanged(c.room)
	return nil
}

// deliver pushes an event without blocking. A full channel means the consumer
// stopped draining; the event is dropped with a warning.
func (c *busConn) deliver(evt event.SessionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- evt:
	default:
		c.bus.log.Warn("Subscription buffer full, dropping event", "room", c.room, "conn", c.id)
	}
}
