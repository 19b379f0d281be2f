package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ignews/internal/pkg/usercontext"
)

// RequireAuth ensures a logged-in web session; redirects home if missing.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Redirect("/", fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireAPISessionAuth ensures a logged-in session for API routes and returns JSON 401 instead of redirect.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireActiveSubscription lets only readers with an active subscription
// through. Everyone else is redirected to the URL built by fallback.
func RequireActiveSubscription(fallback func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !usercontext.HasActiveSubscription(c) {
			return c.Redirect(fallback(c), fiber.StatusSeeOther)
		}
		return c.Next()
	}
}
