package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ignews/internal/pkg/identity"
)

// LocalsKey is the fiber Locals key holding the UserContext.
const LocalsKey = "USER_CONTEXT"

// UserContext represents the complete user context for a request
type UserContext struct {
	IsLoggedIn bool             `json:"is_logged_in"`
	Session    identity.Session `json:"session"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(LocalsKey).(UserContext); ok {
		return ctx
	}
	return UserContext{IsLoggedIn: false}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetEmail returns the signed-in email, or empty string if not logged in
func GetEmail(c *fiber.Ctx) string {
	return GetUserContext(c).Session.User.Email
}

// HasActiveSubscription checks if the current user may read full posts
func HasActiveSubscription(c *fiber.Ctx) bool {
	ctx := GetUserContext(c)
	return ctx.IsLoggedIn && ctx.Session.HasActiveSubscription()
}
