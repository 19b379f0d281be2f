package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/ignews/app/models"
	"github.com/ManuelReschke/ignews/internal/pkg/billing"
	"github.com/ManuelReschke/ignews/internal/pkg/identity"
	"github.com/ManuelReschke/ignews/internal/pkg/usercontext"
)

const stripeWebhookBodyLimit = 1024 * 1024 // 1MiB

// Subscriber starts a checkout for a signed-in reader.
type Subscriber interface {
	Subscribe(ctx context.Context, email string) (string, error)
}

// EventVerifier checks the Stripe signature and parses the event.
type EventVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

// EventRecorder persists webhook deliveries.
type EventRecorder interface {
	RecordWebhookEvent(ctx context.Context, in billing.WebhookEventInput) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error
}

// EventProcessor applies a verified event.
type EventProcessor interface {
	Process(ctx context.Context, event stripe.Event) error
}

// BillingController handles checkout and Stripe webhooks.
type BillingController struct {
	checkout  Subscriber
	verifier  EventVerifier
	events    EventRecorder
	processor EventProcessor
}

func NewBillingController(checkout Subscriber, verifier EventVerifier, events EventRecorder, processor EventProcessor) *BillingController {
	return &BillingController{
		checkout:  checkout,
		verifier:  verifier,
		events:    events,
		processor: processor,
	}
}

// HandleSubscribe creates a checkout session for the signed-in reader.
func (bc *BillingController) HandleSubscribe(c *fiber.Ctx) error {
	if usercontext.HasActiveSubscription(c) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_subscribed"})
	}
	email := identity.NormalizeEmail(usercontext.GetEmail(c))
	if email == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sessionID, err := bc.checkout.Subscribe(ctx, email)
	if err != nil {
		log.Errorf("[Billing] checkout for %s failed: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed"})
	}
	return c.JSON(fiber.Map{"sessionId": sessionID})
}

// HandleStripeWebhook verifies, records and applies a Stripe event. Any
// failure answers non-2xx so Stripe delivers the event again.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	if len(rawBody) > stripeWebhookBodyLimit {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "payload_too_large"})
	}

	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}
	event, err := bc.verifier.ConstructEvent(rawBody, signature)
	if err != nil {
		log.Warnf("[Billing] rejected webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	created, stored, err := bc.events.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("[Billing] could not record webhook %s: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// Failed deliveries are retried by Stripe with the same event id and
	// must be processed again.
	if !created && stored.IsProcessed() {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	processErr := bc.processor.Process(ctx, event)
	if err := bc.events.MarkWebhookProcessed(ctx, stored.ID, processErr); err != nil {
		log.Warnf("[Billing] could not mark webhook %s processed: %v", event.ID, err)
	}

	if processErr != nil {
		switch {
		case errors.Is(processErr, billing.ErrDuplicateSubscription):
			// The mirror exists; redelivery cannot change that.
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "ignored": true})
		case errors.Is(processErr, billing.ErrUnknownCustomer):
			// Customers are linked before checkout starts, so a customer
			// without a user stays unknown on every redelivery.
			log.Errorf("[Billing] webhook %s (%s) for unknown customer: %v", event.ID, event.Type, processErr)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "ignored": true})
		}
		log.Errorf("[Billing] webhook %s (%s) failed: %v", event.ID, event.Type, processErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stripe_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
