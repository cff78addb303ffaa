package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/banksoal/apiserver/internal/logger"
	"github.com/banksoal/apiserver/internal/mq"
	"github.com/banksoal/apiserver/internal/storage"
	"github.com/banksoal/apiserver/types"
)

// Publisher sends JSON events to a broker channel.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, v any) (string, error)
}

// Purger removes the stored objects of permanently deleted rows. With a
// publisher it hands the work to the worker; otherwise it deletes inline.
type Purger struct {
	storage   *storage.Storage
	publisher Publisher
	channel   string
}

func NewPurger(store *storage.Storage, publisher Publisher, channel string) *Purger {
	return &Purger{storage: store, publisher: publisher, channel: channel}
}

// Schedule publishes the event, falling back to inline deletion when the
// broker is unavailable.
func (p *Purger) Schedule(ctx context.Context, event types.PurgeEvent) error {
	if len(event.ObjectKeys) == 0 {
		return nil
	}
	if p.publisher != nil {
		id, err := p.publisher.PublishJSON(ctx, p.channel, event)
		if err == nil {
			logger.Info().Str("kind", event.Kind).Int64("id", event.ID).Str("message_id", id).Int("objects", len(event.ObjectKeys)).Msg("purge scheduled")
			return nil
		}
		logger.Warn().Err(err).Str("channel", p.channel).Msg("publish purge event failed, deleting inline")
	}
	return p.Apply(ctx, event)
}

// Apply deletes the objects named by the event.
func (p *Purger) Apply(ctx context.Context, event types.PurgeEvent) error {
	if p.storage == nil {
		return nil
	}
	if err := p.storage.DeleteAll(ctx, event.ObjectKeys); err != nil {
		return fmt.Errorf("purge %s %d: %w", event.Kind, event.ID, err)
	}
	logger.Info().Str("kind", event.Kind).Int64("id", event.ID).Int("objects", len(event.ObjectKeys)).Msg("objects purged")
	return nil
}

// Handle is an mq.Handler that applies purge events.
func (p *Purger) Handle(ctx context.Context, msg mq.Message) error {
	var event types.PurgeEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// Malformed payloads will never succeed; ack them.
		logger.Error().Err(err).Str("message_id", msg.ID).Msg("discarding malformed purge event")
		return nil
	}
	return p.Apply(ctx, event)
}
