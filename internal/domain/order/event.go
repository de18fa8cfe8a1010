package order

import (
	"context"
	"time"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventStatusChanged EventType = "order.status_changed"
	EventUpdated       EventType = "order.updated"
	EventDeleted       EventType = "order.deleted"
)

// Event describes a completed change to an order.
type Event struct {
	Type    EventType
	OrderID string
	// Status is the status after the change; empty for deletions.
	Status Status
	At     time.Time
}

// Publisher delivers order events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
