package controllers

import (
	"context"
	"html/template"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ignews/internal/pkg/env"
	"github.com/ManuelReschke/ignews/internal/pkg/posts"
	"github.com/ManuelReschke/ignews/internal/pkg/usercontext"
	"github.com/ManuelReschke/ignews/internal/pkg/viewmodel"
)

// PostSource renders post pages.
type PostSource interface {
	Preview(ctx context.Context, slug string) (*posts.Post, error)
	Post(ctx context.Context, slug string) (*posts.Post, error)
	List(ctx context.Context) ([]posts.Summary, error)
}

// PostController renders the posts index, previews and full posts.
type PostController struct {
	posts PostSource
}

func NewPostController(source PostSource) *PostController {
	return &PostController{posts: source}
}

// FullPostURL is where subscribers read the complete post.
func FullPostURL(slug string) string {
	return "/posts/" + slug
}

// PreviewURL is where everyone else lands.
func PreviewURL(slug string) string {
	return "/posts/preview/" + slug
}

func (pc *PostController) HandleIndex(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := pc.posts.List(ctx)
	if err != nil {
		log.Errorf("[Posts] list failed: %v", err)
		return renderError(c, fiber.StatusBadGateway, "Posts are unavailable right now.")
	}

	return c.Render("posts/index", fiber.Map{
		"Layout": viewmodel.NewLayout(c, "Posts", nil),
		"Posts":  list,
	}, "layouts/main")
}

// HandlePreview shows the first blocks of a post. Subscribers are sent to
// the full post; the page also carries a client-side check for copies
// served from a shared cache.
func (pc *PostController) HandlePreview(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if usercontext.HasActiveSubscription(c) {
		return c.Redirect(FullPostURL(slug), fiber.StatusSeeOther)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := pc.posts.Preview(ctx, slug)
	if err != nil {
		return pc.handleError(c, slug, err)
	}
	return pc.render(c, "posts/preview", post)
}

// HandleShow renders the full post. Access is checked by
// middleware.RequireActiveSubscription.
func (pc *PostController) HandleShow(c *fiber.Ctx) error {
	slug := c.Params("slug")

	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := pc.posts.Post(ctx, slug)
	if err != nil {
		return pc.handleError(c, slug, err)
	}
	return pc.render(c, "posts/show", post)
}

func (pc *PostController) render(c *fiber.Ctx, view string, post *posts.Post) error {
	og := &viewmodel.OpenGraph{
		Title: post.Title,
		URL:   env.PublicBaseURL() + PreviewURL(post.Slug),
	}
	return c.Render(view, fiber.Map{
		"Layout":    viewmodel.NewLayout(c, post.Title, og),
		"Post":      post,
		"Content":   template.HTML(post.Content),
		"FullURL":   FullPostURL(post.Slug),
		"Subscribe": "/",
	}, "layouts/main")
}

func (pc *PostController) handleError(c *fiber.Ctx, slug string, err error) error {
	if posts.IsNotFound(err) {
		return renderError(c, fiber.StatusNotFound, "Post not found.")
	}
	log.Errorf("[Posts] render %s failed: %v", slug, err)
	return renderError(c, fiber.StatusBadGateway, "This post is unavailable right now.")
}

func renderError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).Render("error", fiber.Map{
		"Layout":  viewmodel.NewLayout(c, "Error", nil),
		"Status":  status,
		"Message": message,
	}, "layouts/main")
}
