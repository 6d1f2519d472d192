package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"vtrack/internal/outbox"
)

type OutboxStore struct {
	db *DB
}

func (s *OutboxStore) Append(ctx context.Context, evt outbox.Event) error {
	return s.db.write(ctx, func(t *tables) error {
		t.outbox = append(t.outbox, evt)
		return nil
	})
}

func (s *OutboxStore) FetchUnpublished(ctx context.Context, limit int) ([]outbox.Event, error) {
	var out []outbox.Event
	err := s.db.read(ctx, func(t *tables) error {
		for _, evt := range t.outbox {
			if evt.PublishedAt == nil {
				out = append(out, evt)
			}
			if len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *OutboxStore) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	return s.db.write(ctx, func(t *tables) error {
		for i := range t.outbox {
			if slices.Contains(ids, t.outbox[i].ID) {
				published := at
				t.outbox[i].PublishedAt = &published
			}
		}
		return nil
	})
}

// Events returns every recorded event, oldest first.
func (s *OutboxStore) Events(ctx context.Context) []outbox.Event {
	var out []outbox.Event
	_ = s.db.read(ctx, func(t *tables) error {
		out = slices.Clone(t.outbox)
		return nil
	})
	return out
}

// EventTypes lists the type of every recorded event, oldest first.
func (s *OutboxStore) EventTypes(ctx context.Context) []string {
	events := s.Events(ctx)
	types := make([]string, len(events))
	for i, evt := range events {
		types[i] = evt.EventType
	}
	return types
}
