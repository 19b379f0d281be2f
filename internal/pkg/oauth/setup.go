package oauth

import (
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/github"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/ignews/internal/pkg/cache"
	"github.com/ManuelReschke/ignews/internal/pkg/env"
)

// ProviderGitHub is the only sign-in provider.
const ProviderGitHub = "github"

// Config holds the OAuth application credentials.
type Config struct {
	GitHubKey    string
	GitHubSecret string
	BaseURL      string
}

func LoadConfig() Config {
	return Config{
		GitHubKey:    env.GetEnv("GITHUB_KEY", ""),
		GitHubSecret: env.GetEnv("GITHUB_SECRET", ""),
		BaseURL:      env.PublicBaseURL(),
	}
}

// CallbackURL is the redirect URL registered with the provider.
func (c Config) CallbackURL(provider string) string {
	return c.BaseURL + "/auth/" + provider + "/callback"
}

// Setup registers the GitHub provider with the read-only profile scope.
// It is safe to call multiple times; providers will just be re-registered.
func Setup(cfg Config) {
	goth.UseProviders(
		github.New(cfg.GitHubKey, cfg.GitHubSecret, cfg.CallbackURL(ProviderGitHub), "read:user"),
	)
}

// UseRedisState keeps the OAuth state in Redis DB 2, next to the app
// sessions (DB 1) and the page cache (DB 0).
func UseRedisState(cfg cache.Config) {
	gothfiber.SessionStore = session.New(session.Config{
		Storage:        cache.NewStorage(cfg, cache.DatabaseOAuth),
		KeyLookup:      "cookie:" + gothic.SessionName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
		Expiration:     time.Hour,
	})
}
