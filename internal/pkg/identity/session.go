package identity

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ignews/app/models"
)

// SessionUser is the identity part of a session payload.
type SessionUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
}

// Session is derived on every read; ActiveSubscription is nil for readers
// without an active subscription.
type Session struct {
	User               SessionUser          `json:"user"`
	Expires            time.Time            `json:"expires"`
	ActiveSubscription *models.Subscription `json:"activeSubscription"`
}

// HasActiveSubscription is the check the preview and post pages gate on.
func (s Session) HasActiveSubscription() bool {
	return s.ActiveSubscription.IsActive()
}

// UserLookup resolves a normalized email to a user.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// ActiveSubscriptionLookup finds the active mirror owned by a user.
type ActiveSubscriptionLookup interface {
	FindActiveByUserRef(ctx context.Context, userRef string) (*models.Subscription, error)
}

// Enricher attaches the active subscription to sessions.
type Enricher struct {
	users UserLookup
	subs  ActiveSubscriptionLookup
}

func NewEnricher(users UserLookup, subs ActiveSubscriptionLookup) *Enricher {
	return &Enricher{users: users, subs: subs}
}

// Enrich never fails: a missing user, a missing subscription and a store
// outage all produce a session without subscription.
func (e *Enricher) Enrich(ctx context.Context, s Session) Session {
	s.ActiveSubscription = nil

	email := NormalizeEmail(s.User.Email)
	if email == "" || e == nil || e.users == nil || e.subs == nil {
		return s
	}

	user, err := e.users.GetByEmail(ctx, email)
	if err != nil || user == nil {
		log.Debugf("[Identity] no user for session: %v", err)
		return s
	}

	sub, err := e.subs.FindActiveByUserRef(ctx, user.Ref)
	if err != nil || sub == nil {
		log.Debugf("[Identity] no active subscription for user %s: %v", user.Ref, err)
		return s
	}

	s.ActiveSubscription = sub
	return s
}
