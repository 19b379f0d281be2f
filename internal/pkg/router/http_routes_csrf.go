package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"github.com/ManuelReschke/ignews/app/controllers"
	"github.com/ManuelReschke/ignews/internal/pkg/env"
	"github.com/ManuelReschke/ignews/internal/pkg/middleware"
)

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/")
		},
	}

	group := app.Group("", csrf.New(csrfConf))
	group.Get("/", h.deps.Home.HandleHome)
	group.Get("/posts", h.deps.Posts.HandleIndex)
	group.Get("/posts/preview/:slug", h.deps.Posts.HandlePreview)
	group.Get("/posts/:slug", middleware.RequireActiveSubscription(func(c *fiber.Ctx) string {
		return controllers.PreviewURL(c.Params("slug"))
	}), h.deps.Posts.HandleShow)
	group.Post("/logout", middleware.RequireAuth, h.deps.Auth.HandleLogout)
}
