package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ignews/app/models"
	"gorm.io/gorm"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a subscription mirror repository backed by GORM
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create inserts a new mirror. A second insert for the same provider id
// fails on the subscription_by_id unique index.
func (r *subscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionRepository) GetBySubscriptionID(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Replace overwrites every data column of the mirror stored under ref.
func (r *subscriptionRepository) Replace(ctx context.Context, ref string, sub *models.Subscription) error {
	sub.Ref = ref
	sub.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("ref = ?", ref).
		Select("id", "user_ref", "status", "price_id", "updated_at").
		Updates(sub).Error
}

// FindActiveByUserRef returns the user's active mirror. Nothing prevents two
// active rows for one user; the most recently updated one wins.
func (r *subscriptionRepository) FindActiveByUserRef(ctx context.Context, userRef string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_ref = ? AND status = ?", userRef, models.SubscriptionStatusActive).
		Order("updated_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListByUserRef(ctx context.Context, userRef string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).Where("user_ref = ?", userRef).Order("created_at ASC").Find(&subs).Error
	return subs, err
}
