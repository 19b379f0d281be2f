package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a reader identified by a case-folded email. Rows are created on the
// first OAuth sign-in and only the Stripe customer reference changes later.
type User struct {
	Ref              string    `gorm:"primaryKey;type:varchar(36)" json:"ref"`
	Email            string    `gorm:"type:varchar(200);not null;uniqueIndex:user_by_email" json:"email" validate:"required,email,max=200"`
	Name             string    `gorm:"type:varchar(150);default:''" json:"name" validate:"max=150"`
	AvatarURL        string    `gorm:"type:varchar(255);default:''" json:"avatar_url" validate:"max=255"`
	StripeCustomerID *string   `gorm:"type:varchar(191);uniqueIndex:user_by_stripe_customer_id" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName keeps the collection name used by the indexes above.
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns the opaque reference used by subscriptions.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Ref == "" {
		u.Ref = uuid.NewString()
	}
	return nil
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// HasStripeCustomer reports whether a billing customer is linked to the user.
func (u *User) HasStripeCustomer() bool {
	return u.StripeCustomerID != nil && strings.TrimSpace(*u.StripeCustomerID) != ""
}

// CustomerID returns the linked Stripe customer id or an empty string.
func (u *User) CustomerID() string {
	if !u.HasStripeCustomer() {
		return ""
	}
	return *u.StripeCustomerID
}
