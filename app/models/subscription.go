package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stripe subscription statuses. Only SubscriptionStatusActive grants access
// to full posts.
const (
	SubscriptionStatusActive            = "active"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusPaused            = "paused"
)

// Subscription mirrors the billing provider's subscription state. It is
// rewritten from a fresh provider fetch on every billing event and never from
// webhook payload fields.
type Subscription struct {
	Ref       string    `gorm:"primaryKey;type:varchar(36)" json:"-"`
	ID        string    `gorm:"column:id;type:varchar(191);not null;uniqueIndex:subscription_by_id" json:"id"`
	UserRef   string    `gorm:"type:varchar(36);not null;index:subscription_by_user_ref" json:"userId"`
	Status    string    `gorm:"type:varchar(32);not null;index:subscription_by_status" json:"status"`
	PriceID   string    `gorm:"column:price_id;type:varchar(191);default:''" json:"price_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.Ref == "" {
		s.Ref = uuid.NewString()
	}
	return nil
}

// IsActive reports whether the mirror grants subscriber access.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}
