package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ignews/internal/pkg/middleware"
)

const (
	webhookPath         = "/api/webhooks"
	defaultAPIRateLimit = 60
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	limit := h.deps.APIRateLimit
	if limit <= 0 {
		limit = defaultAPIRateLimit
	}
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        limit,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		// Stripe retries from a small pool of addresses.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == webhookPath
		},
	}))

	api.Get("/auth/session", h.deps.Auth.HandleSession)
	api.Post("/subscribe", middleware.RequireAPISessionAuth, h.deps.Billing.HandleSubscribe)
	api.Post("/webhooks", h.deps.Billing.HandleStripeWebhook)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
