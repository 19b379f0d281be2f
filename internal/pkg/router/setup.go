package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ignews/app/controllers"
	"github.com/ManuelReschke/ignews/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers and middleware collaborators built in main.
type Dependencies struct {
	Sessions middleware.SessionReader
	Enricher middleware.SessionEnricher

	Home    *controllers.HomeController
	Posts   *controllers.PostController
	Auth    *controllers.AuthController
	Billing *controllers.BillingController
	Admin   *controllers.AdminController

	// AdminUsers guards /admin with basic auth; the group is not mounted
	// when empty.
	AdminUsers map[string]string
	// APIRateLimit is the per-IP request budget per minute on /api; 0
	// means defaultAPIRateLimit.
	APIRateLimit int
	// LimiterStorage shares API rate limits between instances. Nil keeps
	// them in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Install HttpRouter first so the global UserContext middleware runs
	// before the API routes that depend on it.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
