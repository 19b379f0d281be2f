package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/ignews/app/models"
)

// Stripe event types that change the subscription mirror.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
)

// SubscriptionSaver is the part of the synchronizer the webhook needs.
type SubscriptionSaver interface {
	SaveSubscription(ctx context.Context, subscriptionID, customerID string, createAction bool) (*models.Subscription, error)
}

// WebhookProcessor dispatches verified Stripe events to the synchronizer.
type WebhookProcessor struct {
	saver SubscriptionSaver
}

func NewWebhookProcessor(saver SubscriptionSaver) *WebhookProcessor {
	return &WebhookProcessor{saver: saver}
}

// Only the ids are read from the payload; state is always re-fetched.
type checkoutSessionPayload struct {
	ID           string `json:"id"`
	Mode         string `json:"mode"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

type subscriptionPayload struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// IsRelevant reports whether the event type is handled.
func IsRelevant(eventType string) bool {
	switch eventType {
	case EventCheckoutSessionCompleted, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	}
	return false
}

// Process handles one event. Unhandled types are ignored and return nil.
func (p *WebhookProcessor) Process(ctx context.Context, event stripe.Event) error {
	eventType := string(event.Type)
	if !IsRelevant(eventType) {
		log.Debugf("[Billing] ignoring webhook event %s (%s)", event.ID, eventType)
		return nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return errors.New("webhook event has no data object")
	}

	switch eventType {
	case EventCheckoutSessionCompleted:
		var session checkoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("decode checkout.session: %w", err)
		}
		if session.Mode != "" && session.Mode != string(stripe.CheckoutSessionModeSubscription) {
			log.Debugf("[Billing] ignoring %s checkout session %s", session.Mode, session.ID)
			return nil
		}
		if strings.TrimSpace(session.Subscription) == "" {
			return fmt.Errorf("checkout session %s has no subscription", session.ID)
		}
		_, err := p.saver.SaveSubscription(ctx, session.Subscription, session.Customer, true)
		return err

	default:
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		_, err := p.saver.SaveSubscription(ctx, sub.ID, sub.Customer, false)
		return err
	}
}
