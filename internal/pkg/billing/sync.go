package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ignews/app/models"
)

var (
	// ErrUnknownCustomer means no user is linked to the billing customer.
	ErrUnknownCustomer = errors.New("billing: no user for customer")
	// ErrDuplicateSubscription is returned when a create targets an id that is already mirrored.
	ErrDuplicateSubscription = errors.New("billing: subscription already mirrored")
	// ErrSubscriptionNotFound is returned when a replace targets an id that was never mirrored.
	ErrSubscriptionNotFound = errors.New("billing: subscription not mirrored")
)

// SubscriptionFetcher retrieves authoritative subscription state.
type SubscriptionFetcher interface {
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

// CustomerResolver maps a billing customer to a local user.
type CustomerResolver interface {
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
}

// SubscriptionStore persists subscription mirrors.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetBySubscriptionID(ctx context.Context, id string) (*models.Subscription, error)
	Replace(ctx context.Context, ref string, sub *models.Subscription) error
}

// SyncRequest is one synchronization request as delivered by a billing event.
type SyncRequest struct {
	SubscriptionID string `validate:"required,max=191"`
	CustomerID     string `validate:"required,max=191"`
	CreateAction   bool
}

var validate = validator.New()

// Synchronizer mirrors Stripe subscriptions into the local store.
type Synchronizer struct {
	stripe    SubscriptionFetcher
	customers CustomerResolver
	subs      SubscriptionStore
}

func NewSynchronizer(fetcher SubscriptionFetcher, customers CustomerResolver, subs SubscriptionStore) *Synchronizer {
	return &Synchronizer{stripe: fetcher, customers: customers, subs: subs}
}

// MirrorFromStripe projects a Stripe subscription onto the mirror shape.
// PriceID is taken from the first line item and is empty without items.
func MirrorFromStripe(sub *stripe.Subscription, userRef string) *models.Subscription {
	m := &models.Subscription{
		ID:      sub.ID,
		UserRef: userRef,
		Status:  string(sub.Status),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		if item := sub.Items.Data[0]; item != nil && item.Price != nil {
			m.PriceID = item.Price.ID
		}
	}
	return m
}

// SaveSubscription fetches the subscription from Stripe and writes the
// mirror. createAction inserts a new mirror; otherwise the existing mirror
// with the same id is overwritten. Errors are logged and returned.
func (s *Synchronizer) SaveSubscription(ctx context.Context, subscriptionID, customerID string, createAction bool) (*models.Subscription, error) {
	req := SyncRequest{
		SubscriptionID: strings.TrimSpace(subscriptionID),
		CustomerID:     strings.TrimSpace(customerID),
		CreateAction:   createAction,
	}
	mirror, err := s.save(ctx, req)
	if err != nil {
		log.Errorf("[Billing] save subscription %s (customer %s, create=%t) failed: %v", req.SubscriptionID, req.CustomerID, createAction, err)
		return nil, err
	}
	log.Infof("[Billing] subscription %s mirrored for user %s with status %s", mirror.ID, mirror.UserRef, mirror.Status)
	return mirror, nil
}

func (s *Synchronizer) save(ctx context.Context, req SyncRequest) (*models.Subscription, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid sync request: %w", err)
	}

	user, err := s.customers.GetByStripeCustomerID(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCustomer, req.CustomerID)
		}
		return nil, fmt.Errorf("resolve customer %s: %w", req.CustomerID, err)
	}

	remote, err := s.stripe.RetrieveSubscription(ctx, req.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription %s: %w", req.SubscriptionID, err)
	}

	mirror := MirrorFromStripe(remote, user.Ref)
	if mirror.ID == "" {
		mirror.ID = req.SubscriptionID
	}

	if req.CreateAction {
		if err := s.subs.Create(ctx, mirror); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateSubscription, mirror.ID)
			}
			return nil, fmt.Errorf("create subscription %s: %w", mirror.ID, err)
		}
		return mirror, nil
	}

	existing, err := s.subs.GetBySubscriptionID(ctx, mirror.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, mirror.ID)
		}
		return nil, fmt.Errorf("find subscription %s: %w", mirror.ID, err)
	}
	if err := s.subs.Replace(ctx, existing.Ref, mirror); err != nil {
		return nil, fmt.Errorf("replace subscription %s: %w", mirror.ID, err)
	}
	mirror.CreatedAt = existing.CreatedAt
	return mirror, nil
}
