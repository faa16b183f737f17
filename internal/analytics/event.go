// internal/analytics/event.go

// Package analytics delivers evaluation events. Events are append-only and
// delivery failures never affect the evaluation that produced them.
package analytics

import (
	"context"
	"time"

	"tool-evaluator/internal/engine"

	"github.com/google/uuid"
)

// Event wraps the engine payload with delivery metadata.
type Event struct {
	ID         string    `json:"id"`
	Surface    string    `json:"surface"`
	CallerTier string    `json:"callerTier"`
	OccurredAt time.Time `json:"occurredAt"`
	engine.EventPayload
}

func NewEvent(surface string, caller engine.Tier, payload engine.EventPayload) Event {
	return Event{
		ID:           uuid.NewString(),
		Surface:      surface,
		CallerTier:   caller.String(),
		OccurredAt:   time.Now().UTC(),
		EventPayload: payload,
	}
}

// Sink accepts events. Implementations must be safe for concurrent use.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Name() string
}
