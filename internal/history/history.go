// Package history records module snapshots, alerts and rollovers to an
// external store for later inspection. It is write-mostly: nothing in the
// scheduler reads it back.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/extbox/internal/module"
)

// EventType is the kind of recorded event.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventAlert    EventType = "alert"
	EventRollover EventType = "rollover"
)

// Event is one history row.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Module     string            `json:"module,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       module.DataPoints `json:"data,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// NewEvent stamps a fresh event ID.
func NewEvent(t EventType, mod string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, Module: mod, OccurredAt: at.UTC()}
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Querier is implemented by sinks that can read events back.
type Querier interface {
	// Query returns events for mod newer than since, newest first. An empty
	// mod matches every module; limit <= 0 means no limit.
	Query(ctx context.Context, mod string, since time.Time, limit int) ([]Event, error)
}

// Purger is implemented by sinks that support retention.
type Purger interface {
	// PurgeOlderThan deletes events before t and reports how many.
	PurgeOlderThan(ctx context.Context, t time.Time) (int64, error)
}
