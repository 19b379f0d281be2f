package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ignews/internal/pkg/identity"
	"github.com/ManuelReschke/ignews/internal/pkg/usercontext"
)

// SessionReader returns the signed-in identity of a request.
type SessionReader interface {
	Current(c *fiber.Ctx) (identity.Session, bool)
}

// SessionEnricher attaches the active subscription to a session.
type SessionEnricher interface {
	Enrich(ctx context.Context, s identity.Session) identity.Session
}

const enrichTimeout = 5 * time.Second

// UserContextMiddleware sets up the complete user context for every request.
// The subscription is looked up on every request so billing changes apply
// without signing in again.
func UserContextMiddleware(sessions SessionReader, enricher SessionEnricher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Goth keeps its own session store on /auth/*; don't touch ours there.
		if strings.HasPrefix(c.Path(), "/auth/") {
			return c.Next()
		}

		sess, ok := sessions.Current(c)
		if !ok {
			c.Locals(usercontext.LocalsKey, usercontext.UserContext{IsLoggedIn: false})
			return c.Next()
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), enrichTimeout)
		sess = enricher.Enrich(ctx, sess)
		cancel()

		c.Locals(usercontext.LocalsKey, usercontext.UserContext{
			IsLoggedIn: true,
			Session:    sess,
		})
		return c.Next()
	}
}
