package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/markbates/goth"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/ignews/internal/pkg/identity"
	"github.com/ManuelReschke/ignews/internal/pkg/usercontext"
)

// SignInBridge decides whether an OAuth identity may sign in.
type SignInBridge interface {
	SignIn(ctx context.Context, p identity.Profile) bool
}

// SessionWriter stores and destroys the signed-in identity.
type SessionWriter interface {
	Login(c *fiber.Ctx, user identity.SessionUser) error
	Logout(c *fiber.Ctx) error
}

// AuthController handles the OAuth callback, logout and the session endpoint.
type AuthController struct {
	bridge       SignInBridge
	sessions     SessionWriter
	completeAuth func(c *fiber.Ctx) (goth.User, error)
}

func NewAuthController(bridge SignInBridge, sessions SessionWriter) *AuthController {
	return &AuthController{
		bridge:   bridge,
		sessions: sessions,
		completeAuth: func(c *fiber.Ctx) (goth.User, error) {
			return gothfiber.CompleteUserAuth(c)
		},
	}
}

// HandleOAuthCallback completes the provider flow, lets the identity bridge
// decide and logs the user in.
func (ac *AuthController) HandleOAuthCallback(c *fiber.Ctx) error {
	u, err := ac.completeAuth(c)
	if err != nil {
		log.Warnf("[Auth] oauth callback failed: %v", err)
		return redirectWithError(c, "/", "Sign-in with "+c.Params("provider")+" failed")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	profile := identity.Profile{
		Email:     u.Email,
		Name:      firstNonEmpty(u.Name, u.NickName),
		AvatarURL: u.AvatarURL,
	}
	if !ac.bridge.SignIn(ctx, profile) {
		return redirectWithError(c, "/", "Sign-in was denied. Make sure your account has a public email address.")
	}

	if err := ac.sessions.Login(c, identity.SessionUser{
		Name:  profile.Name,
		Email: identity.NormalizeEmail(profile.Email),
		Image: profile.Avatar(),
	}); err != nil {
		log.Errorf("[Auth] session save failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).SendString("session save failed")
	}

	return c.Redirect("/", fiber.StatusSeeOther)
}

// HandleLogout destroys the session.
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	if err := ac.sessions.Logout(c); err != nil {
		return redirectWithError(c, "/", "Logout failed")
	}
	return redirectWithSuccess(c, "/", "Signed out")
}

// HandleSession returns the enriched session, or an empty object for
// anonymous requests.
func (ac *AuthController) HandleSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.JSON(fiber.Map{})
	}
	return c.JSON(userCtx.Session)
}
