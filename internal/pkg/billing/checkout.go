package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/ignews/app/models"
)

// PriceCacheTTL is how long the home page price is reused.
const PriceCacheTTL = 24 * time.Hour

// CheckoutProvider is the Stripe surface used by checkout and the catalog.
type CheckoutProvider interface {
	CreateCustomer(ctx context.Context, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID string) (string, error)
	GetPrice(ctx context.Context) (*stripe.Price, error)
}

// CustomerStore reads users and links them to billing customers.
type CustomerStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, ref, customerID string) error
}

// Cache stores serialized values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Checkout starts subscription checkouts and exposes the product price.
type Checkout struct {
	provider CheckoutProvider
	users    CustomerStore
	cache    Cache
}

func NewCheckout(provider CheckoutProvider, users CustomerStore, cache Cache) *Checkout {
	return &Checkout{provider: provider, users: users, cache: cache}
}

// Subscribe creates the Stripe customer on first use and returns the id of
// a new checkout session for the user with the given (normalized) email.
func (c *Checkout) Subscribe(ctx context.Context, email string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", errors.New("email is required")
	}
	user, err := c.users.GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("load user %s: %w", email, err)
	}

	customerID := user.CustomerID()
	if customerID == "" {
		customerID, err = c.provider.CreateCustomer(ctx, user.Email)
		if err != nil {
			return "", fmt.Errorf("create customer: %w", err)
		}
		if err := c.users.SetStripeCustomerID(ctx, user.Ref, customerID); err != nil {
			return "", fmt.Errorf("link customer %s: %w", customerID, err)
		}
		log.Infof("[Billing] linked customer %s to user %s", customerID, user.Ref)
	}

	sessionID, err := c.provider.CreateCheckoutSession(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sessionID, nil
}

// Price returns the subscription price, cached for PriceCacheTTL. A cache
// outage falls through to Stripe.
func (c *Checkout) Price(ctx context.Context) (*Price, error) {
	const key = "price"
	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, key); err == nil {
			var p Price
			if json.Unmarshal(raw, &p) == nil {
				return &p, nil
			}
		}
	}

	sp, err := c.provider.GetPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get price: %w", err)
	}
	p := &Price{
		ID:       sp.ID,
		Amount:   FormatAmount(sp.UnitAmount, string(sp.Currency)),
		Currency: string(sp.Currency),
	}

	if c.cache != nil {
		if raw, err := json.Marshal(p); err == nil {
			if err := c.cache.Set(ctx, key, raw, PriceCacheTTL); err != nil {
				log.Warnf("[Billing] could not cache price: %v", err)
			}
		}
	}
	return p, nil
}

// FormatAmount renders a minor-unit amount, e.g. 990 usd as "$9.90".
func FormatAmount(unitAmount int64, currency string) string {
	value := float64(unitAmount) / 100
	if strings.EqualFold(currency, "usd") || currency == "" {
		return fmt.Sprintf("$%.2f", value)
	}
	return fmt.Sprintf("%.2f %s", value, strings.ToUpper(currency))
}
