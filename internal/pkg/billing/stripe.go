package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/ignews/internal/pkg/env"
)

// StripeConfig holds the Stripe settings read from the environment.
type StripeConfig struct {
	APIKey         string
	PublishableKey string
	WebhookSecret  string
	PriceID        string
	SuccessURL     string
	CancelURL      string
}

func LoadStripeConfig() StripeConfig {
	base := env.PublicBaseURL()
	success := strings.TrimSpace(env.GetEnv("STRIPE_SUCCESS_URL", ""))
	if success == "" {
		success = base + "/posts"
	}
	cancel := strings.TrimSpace(env.GetEnv("STRIPE_CANCEL_URL", ""))
	if cancel == "" {
		cancel = base + "/"
	}

	return StripeConfig{
		APIKey:         strings.TrimSpace(env.GetEnv("STRIPE_API_KEY", "")),
		PublishableKey: strings.TrimSpace(env.GetEnv("STRIPE_PUBLIC_KEY", "")),
		WebhookSecret:  strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		PriceID:        strings.TrimSpace(env.GetEnv("STRIPE_PRICE_ID", "")),
		SuccessURL:     success,
		CancelURL:      cancel,
	}
}

// StripeClient wraps the Stripe resource clients used by the site. It holds
// its own key and backend so no package-level Stripe state is touched.
type StripeClient struct {
	cfg StripeConfig

	subscriptions subscription.Client
	customers     customer.Client
	sessions      checkoutsession.Client
	prices        price.Client
}

func NewStripeClient(cfg StripeConfig) *StripeClient {
	backend := stripe.GetBackend(stripe.APIBackend)
	return &StripeClient{
		cfg:           cfg,
		subscriptions: subscription.Client{B: backend, Key: cfg.APIKey},
		customers:     customer.Client{B: backend, Key: cfg.APIKey},
		sessions:      checkoutsession.Client{B: backend, Key: cfg.APIKey},
		prices:        price.Client{B: backend, Key: cfg.APIKey},
	}
}

func NewStripeClientFromEnv() *StripeClient {
	return NewStripeClient(LoadStripeConfig())
}

func (c *StripeClient) Config() StripeConfig {
	return c.cfg
}

func (c *StripeClient) configured() error {
	if c.cfg.APIKey == "" {
		return errors.New("STRIPE_API_KEY is not configured")
	}
	return nil
}

// RetrieveSubscription fetches the authoritative subscription state.
func (c *StripeClient) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return c.subscriptions.Get(id, params)
}

// CreateCustomer registers a billing customer for the given email.
func (c *StripeClient) CreateCustomer(ctx context.Context, email string) (string, error) {
	if err := c.configured(); err != nil {
		return "", err
	}
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	cus, err := c.customers.New(params)
	if err != nil {
		return "", err
	}
	return cus.ID, nil
}

// CreateCheckoutSession starts a subscription-mode checkout for the
// configured price.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, customerID string) (string, error) {
	if err := c.configured(); err != nil {
		return "", err
	}
	if c.cfg.PriceID == "" {
		return "", errors.New("STRIPE_PRICE_ID is not configured")
	}

	params := &stripe.CheckoutSessionParams{
		Customer:                 stripe.String(customerID),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		BillingAddressCollection: stripe.String("required"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(c.cfg.PriceID), Quantity: stripe.Int64(1)},
		},
		Mode:                stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(c.cfg.SuccessURL),
		CancelURL:           stripe.String(c.cfg.CancelURL),
	}
	params.Context = ctx

	sess, err := c.sessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// GetPrice fetches the configured subscription price.
func (c *StripeClient) GetPrice(ctx context.Context) (*stripe.Price, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	if c.cfg.PriceID == "" {
		return nil, errors.New("STRIPE_PRICE_ID is not configured")
	}
	params := &stripe.PriceParams{}
	params.Context = ctx
	return c.prices.Get(c.cfg.PriceID, params)
}

// ConstructEvent verifies the Stripe-Signature header and parses the event.
func (c *StripeClient) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	if c.cfg.WebhookSecret == "" {
		return stripe.Event{}, errors.New("STRIPE_WEBHOOK_SECRET is not configured")
	}
	return webhook.ConstructEventWithOptions(payload, signature, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
