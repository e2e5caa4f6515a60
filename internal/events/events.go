// Package events publishes resource lifecycle events.
package events

import (
	"context"
	"log/slog"
)

// Type names a lifecycle event, for example "engagement.created".
type Type string

// Event is one lifecycle change of a resource.
type Event struct {
	Type       Type
	ResourceID string
	Actor      string
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to the structured log instead of a broker.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "event::"+string(event.Type),
		"resource_id", event.ResourceID,
		"actor", event.Actor,
	)
	return nil
}
