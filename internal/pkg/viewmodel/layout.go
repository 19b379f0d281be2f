package viewmodel

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/ignews/internal/pkg/identity"
	"github.com/ManuelReschke/ignews/internal/pkg/usercontext"
)

// SiteName is appended to every page title.
const SiteName = "ig.news"

type Layout struct {
	Page                  string
	IsLoggedIn            bool
	User                  identity.SessionUser
	HasActiveSubscription bool
	Msg                   fiber.Map
	CSRFToken             string
	OGViewModel           *OpenGraph
}

// OpenGraph carries the social preview metadata of a page.
type OpenGraph struct {
	Title       string
	Description string
	Image       string
	URL         string
}

// NewLayout builds the layout data from the request's user context and flash.
func NewLayout(c *fiber.Ctx, page string, og *OpenGraph) Layout {
	userCtx := usercontext.GetUserContext(c)
	title := SiteName
	if page != "" {
		title = page + " | " + SiteName
	}
	return Layout{
		Page:                  title,
		IsLoggedIn:            userCtx.IsLoggedIn,
		User:                  userCtx.Session.User,
		HasActiveSubscription: usercontext.HasActiveSubscription(c),
		Msg:                   flash.Get(c),
		CSRFToken:             csrfToken(c),
		OGViewModel:           og,
	}
}

// csrfToken is set by the csrf middleware on page routes only.
func csrfToken(c *fiber.Ctx) string {
	token, _ := c.Locals("csrf").(string)
	return token
}
