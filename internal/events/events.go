package events

import (
	"context"
	"time"
)

// EventBatchCompleted is emitted once per executed entity-type batch.
const EventBatchCompleted = "erp_sync.batch_completed"

// BatchEvent summarises one executed sync batch.
type BatchEvent struct {
	EventType  string    `json:"event_type"`
	TenantID   string    `json:"tenant_id"`
	EntityType string    `json:"entity_type"`
	Sources    []string  `json:"sources,omitempty"`
	Total      int       `json:"total"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	Stopped    bool      `json:"stopped,omitempty"`
	CreatedIDs []string  `json:"created_ids,omitempty"`
	UpdatedIDs []string  `json:"updated_ids,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher delivers batch events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event *BatchEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *BatchEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
