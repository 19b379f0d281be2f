package repository

import (
	"context"

	"github.com/ManuelReschke/ignews/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// FirstOrCreateByEmail inserts the user unless a row with the same email
// exists and returns the stored row. The insert is a single conditional write
// on the user_by_email index, so concurrent first sign-ins cannot produce two
// users.
func (r *userRepository) FirstOrCreateByEmail(ctx context.Context, user *models.User) (*models.User, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(user).Error
	if err != nil {
		return nil, err
	}

	return r.GetByEmail(ctx, user.Email)
}

// GetByEmail retrieves a user by its (already normalized) email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByStripeCustomerID resolves a billing customer to the local user
func (r *userRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetStripeCustomerID links a billing customer to the user
func (r *userRepository) SetStripeCustomerID(ctx context.Context, ref, customerID string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("ref = ?", ref).
		Update("stripe_customer_id", customerID).Error
}
