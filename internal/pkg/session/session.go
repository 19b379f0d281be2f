package session

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/ManuelReschke/ignews/internal/pkg/cache"
	"github.com/ManuelReschke/ignews/internal/pkg/env"
	"github.com/ManuelReschke/ignews/internal/pkg/identity"
)

// Session keys
const (
	KeyAuthenticated = "authenticated"
	KeyEmail         = "user_email"
	KeyName          = "user_name"
	KeyImage         = "user_image"
)

// DefaultTTL matches the lifetime readers expect from "remember me" sessions.
const DefaultTTL = 30 * 24 * time.Hour

// Manager reads and writes the signed-in identity in the user's session.
type Manager struct {
	store *session.Store
	ttl   time.Duration
}

// NewRedisStore creates the fiber session store backed by Redis DB 1
// (cache uses DB 0, OAuth state DB 2).
func NewRedisStore(cfg cache.Config, ttl time.Duration) *session.Store {
	return session.New(session.Config{
		Storage:        cache.NewStorage(cfg, cache.DatabaseSessions),
		Expiration:     ttl,
		KeyLookup:      "cookie:session_id",
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
	})
}

func NewManager(store *session.Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl}
}

// Login stores the identity in a fresh session id.
func (m *Manager) Login(c *fiber.Ctx, user identity.SessionUser) error {
	sess, err := m.store.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("failed to regenerate session: %w", err)
	}

	sess.Set(KeyAuthenticated, true)
	sess.Set(KeyEmail, user.Email)
	sess.Set(KeyName, user.Name)
	sess.Set(KeyImage, user.Image)
	return sess.Save()
}

// Current returns the session identity. ok is false for anonymous requests
// and for sessions that cannot be read.
func (m *Manager) Current(c *fiber.Ctx) (identity.Session, bool) {
	sess, err := m.store.Get(c)
	if err != nil {
		return identity.Session{}, false
	}
	if authed, _ := sess.Get(KeyAuthenticated).(bool); !authed {
		return identity.Session{}, false
	}

	return identity.Session{
		User: identity.SessionUser{
			Name:  stringValue(sess.Get(KeyName)),
			Email: stringValue(sess.Get(KeyEmail)),
			Image: stringValue(sess.Get(KeyImage)),
		},
		Expires: time.Now().Add(m.ttl).UTC(),
	}, true
}

// Logout destroys the session.
func (m *Manager) Logout(c *fiber.Ctx) error {
	sess, err := m.store.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	return sess.Destroy()
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
