// Package outbox records domain events in the same transaction as the state
// change that produced them and relays them to Kafka afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vtrack/pkg/requestcontext"
)

const (
	EventCitationCreated      = "citation.created"
	EventCitationUpdated      = "citation.updated"
	EventCitationDeleted      = "citation.deleted"
	EventPaymentRecorded      = "payment.recorded"
	EventPaymentUpdated       = "payment.updated"
	EventPaymentReversed      = "payment.reversed"
	EventViolatorCreated      = "violator.created"
	EventViolatorUpdated      = "violator.updated"
	EventViolatorDeleted      = "violator.deleted"
	EventViolationTypeCreated = "violation_type.created"
	EventViolationTypeUpdated = "violation_type.updated"
	EventViolationTypeDeleted = "violation_type.deleted"
	EventLocationDeleted      = "location.deleted"
	EventTeamDeleted          = "team.deleted"
	EventUserRegistered       = "user.registered"
	EventUserUpdated          = "user.updated"
	EventUserDeleted          = "user.deleted"
)

// Event is one outbox row.
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// NewEvent marshals payload into an unpublished event.
func NewEvent(aggregateType string, aggregateID uuid.UUID, eventType string, payload any, now time.Time) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID.String(),
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     now,
	}, nil
}

// Appender persists events, normally inside the caller's transaction.
type Appender interface {
	Append(ctx context.Context, evt Event) error
}

// Record builds an event and appends it. A nil appender drops the event.
func Record(ctx context.Context, a Appender, aggregateType string, aggregateID uuid.UUID, eventType string, payload any) error {
	if a == nil {
		return nil
	}
	evt, err := NewEvent(aggregateType, aggregateID, eventType, payload, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	return a.Append(ctx, evt)
}
