package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ignews/app/models"
)

// ErrInvalidEmail is returned for identities without a usable email.
var ErrInvalidEmail = errors.New("identity: invalid email")

// UserStore is the persistence the bridge needs.
type UserStore interface {
	FirstOrCreateByEmail(ctx context.Context, user *models.User) (*models.User, error)
}

// Profile is the part of the OAuth identity kept on first sign-in.
type Profile struct {
	Email     string
	Name      string
	AvatarURL string
}

// Bridge links OAuth identities to local users.
type Bridge struct {
	users UserStore
}

func NewBridge(users UserStore) *Bridge {
	return &Bridge{users: users}
}

// NormalizeEmail case-folds an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EnsureUser returns the user for the profile's email, creating it on first
// sign-in. Existing users are returned unchanged.
func (b *Bridge) EnsureUser(ctx context.Context, p Profile) (*models.User, error) {
	candidate := &models.User{
		Email:     NormalizeEmail(p.Email),
		Name:      truncate(strings.TrimSpace(p.Name), 150),
		AvatarURL: strings.TrimSpace(p.AvatarURL),
	}
	if len(candidate.AvatarURL) > 255 {
		candidate.AvatarURL = ""
	}
	if err := candidate.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	user, err := b.users.FirstOrCreateByEmail(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("ensure user %s: %w", candidate.Email, err)
	}
	return user, nil
}

// SignIn reports whether the sign-in may proceed. Any failure denies it.
func (b *Bridge) SignIn(ctx context.Context, p Profile) bool {
	if _, err := b.EnsureUser(ctx, p); err != nil {
		log.Errorf("[Identity] sign-in denied: %v", err)
		return false
	}
	return true
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
