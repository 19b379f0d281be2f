package repository

import (
	"context"

	"github.com/ManuelReschke/ignews/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	FirstOrCreateByEmail(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, ref, customerID string) error
}

// SubscriptionRepository defines the interface for subscription mirror operations
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetBySubscriptionID(ctx context.Context, id string) (*models.Subscription, error)
	Replace(ctx context.Context, ref string, sub *models.Subscription) error
	FindActiveByUserRef(ctx context.Context, userRef string) (*models.Subscription, error)
	ListByUserRef(ctx context.Context, userRef string) ([]models.Subscription, error)
}

// WebhookEventRepository persists billing webhook deliveries
type WebhookEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Subscription SubscriptionRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Subscription: NewSubscriptionRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}
