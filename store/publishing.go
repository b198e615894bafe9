package store

import (
	"log/slog"

	"chat-app/contract"
	"chat-app/domain"
)

// PublishingStore decorates the repository so every successful insert is
// announced on the live channel. Connected sessions observe the durable log
// as an event stream regardless of who wrote to it (participants or bots).
type PublishingStore struct {
	inner     *MessageRepository
	transport contract.Transport
	log       *slog.Logger
}

func NewPublishingStore(inner *MessageRepository, transport contract.Transport, log *slog.Logger) *PublishingStore {
	return &PublishingStore{inner: inner, transport: transport, log: log}
}

func (p *PublishingStore) Insert(message domain.Message) (domain.Message, error) {
	stored, err := p.inner.Insert(message)
	if err != nil {
		return domain.Message{}, err
	}
	// The message is durable at this point. A failed announcement only delays
	// delivery until the next bulk fetch, so it is logged, not returned.
	if err := p.transport.PublishInsert(stored); err != nil {
		p.log.Warn("Insert not announced", "id", stored.ID, "room", stored.Room, "error", err)
	}
	return stored, nil
}

func (p *PublishingStore) SelectAll(room string) ([]domain.Message, error) {
	return p.inner.SelectAll(room)
}

func (p *PublishingStore) DeleteAll(room string) error {
	return p.inner.DeleteAll(room)
}

func (p *PublishingStore) Latest(room string) (domain.Message, bool, error) {
	return p.inner.Latest(room)
}
