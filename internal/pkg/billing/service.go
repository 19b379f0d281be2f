package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuelReschke/ignews/app/models"
)

// EventStore persists webhook deliveries.
type EventStore interface {
	CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// EventLog records webhook deliveries idempotently.
type EventLog struct {
	store EventStore
}

// NewEventLog creates an event log from an injected store.
func NewEventLog(store EventStore) *EventLog {
	return &EventLog{store: store}
}

// RecordWebhookEvent persists webhook payloads idempotently. The boolean
// reports whether this delivery is the first one for the event id.
func (l *EventLog) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	// Verified Stripe events always carry an id; it is the dedup key.
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		return false, nil, errors.New("provider event id is required")
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return l.store.CreateIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (l *EventLog) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return l.store.MarkProcessed(ctx, webhookEventID, errMsg)
}
