package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// Revalidator drops the cached pages of a post.
type Revalidator interface {
	Revalidate(ctx context.Context, slug string) error
}

// AdminController exposes operator actions. It is mounted behind basic auth,
// e.g. as the target of a CMS publish webhook.
type AdminController struct {
	posts Revalidator
}

func NewAdminController(posts Revalidator) *AdminController {
	return &AdminController{posts: posts}
}

func (ac *AdminController) HandleRevalidate(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "slug_required"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := ac.posts.Revalidate(ctx, slug); err != nil {
		log.Errorf("[Posts] revalidate %s failed: %v", slug, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "revalidate_failed"})
	}
	log.Infof("[Posts] revalidated %s", slug)
	return c.JSON(fiber.Map{"revalidated": slug})
}
