package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	if len(h.deps.AdminUsers) == 0 || h.deps.Admin == nil {
		return
	}
	adminGroup := app.Group("/admin", basicauth.New(basicauth.Config{
		Users: h.deps.AdminUsers,
	}))
	adminGroup.Post("/posts/:slug/revalidate", h.deps.Admin.HandleRevalidate)
}
