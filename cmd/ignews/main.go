package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"

	"github.com/ManuelReschke/ignews/app/controllers"
	"github.com/ManuelReschke/ignews/app/repository"
	"github.com/ManuelReschke/ignews/internal/pkg/billing"
	"github.com/ManuelReschke/ignews/internal/pkg/cache"
	"github.com/ManuelReschke/ignews/internal/pkg/cms"
	"github.com/ManuelReschke/ignews/internal/pkg/database"
	"github.com/ManuelReschke/ignews/internal/pkg/env"
	"github.com/ManuelReschke/ignews/internal/pkg/identity"
	"github.com/ManuelReschke/ignews/internal/pkg/oauth"
	"github.com/ManuelReschke/ignews/internal/pkg/posts"
	"github.com/ManuelReschke/ignews/internal/pkg/publish"
	"github.com/ManuelReschke/ignews/internal/pkg/router"
	"github.com/ManuelReschke/ignews/internal/pkg/session"
	"github.com/ManuelReschke/ignews/views"
)

func main() {
	app, err := NewApplication()
	if err != nil {
		log.Fatal(err)
	}
	err = app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, error) {
	env.SetupEnvFile()

	db, err := database.SetupDatabase(database.LoadConfig())
	if err != nil {
		return nil, err
	}
	repos := repository.NewRepositories(db)

	cacheCfg := cache.LoadConfig()
	redisClient := cache.SetupCache(cacheCfg)

	sessionTTL := env.GetEnvDuration("SESSION_TTL", session.DefaultTTL)
	sessions := session.NewManager(session.NewRedisStore(cacheCfg, sessionTTL), sessionTTL)
	oauth.Setup(oauth.LoadConfig())
	oauth.UseRedisState(cacheCfg)

	// identity
	bridge := identity.NewBridge(repos.User)
	enricher := identity.NewEnricher(repos.User, repos.Subscription)

	// billing
	stripeClient := billing.NewStripeClientFromEnv()
	synchronizer := billing.NewSynchronizer(stripeClient, repos.User, repos.Subscription)
	checkout := billing.NewCheckout(stripeClient, repos.User, cache.NewPageStore(redisClient, "billing:"))

	// posts
	postService := posts.NewService(
		cms.NewClient(cms.LoadConfig()),
		cache.NewPageStore(redisClient, posts.CachePrefix),
		setupPublisher(),
	)

	warmCtx, cancelWarm := context.WithTimeout(context.Background(), 30*time.Second)
	if err := postService.Warm(warmCtx, posts.StaticPaths()); err != nil {
		log.Printf("[Posts] warm-up incomplete: %v", err)
	}
	cancelWarm()

	basePath := findBasePath()

	// init fiber app
	app := fiber.New(fiber.Config{
		Views:     html.NewFileSystem(http.FS(views.FS), ".html"),
		BodyLimit: 4 * 1024 * 1024,
	})

	// ignore and cache favicon
	app.Use(favicon.New(favicon.Config{
		File:         basePath + "public/assets/icons/favicon.ico",
		URL:          "/favicon.ico",
		CacheControl: "public, max-age=604800",
	}))

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// static files
	app.Static("/", basePath+"public/assets", fiber.Static{
		CacheDuration: 15 * time.Second,
		Compress:      true,
	})

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Sessions:       sessions,
		Enricher:       enricher,
		Home:           controllers.NewHomeController(checkout, stripeClient.Config().PublishableKey),
		Posts:          controllers.NewPostController(postService),
		Auth:           controllers.NewAuthController(bridge, sessions),
		Billing:        controllers.NewBillingController(checkout, stripeClient, billing.NewEventLog(repos.WebhookEvent), billing.NewWebhookProcessor(synchronizer)),
		Admin:          controllers.NewAdminController(postService),
		AdminUsers:     adminUsers(),
		APIRateLimit:   env.GetEnvInt("API_RATE_LIMIT", 60),
		LimiterStorage: cache.NewStorage(cacheCfg, cache.DatabaseLimiter),
	})

	return app, nil
}

// setupPublisher returns the S3 publisher, or nil when publishing is
// disabled or the bucket is unreachable.
func setupPublisher() posts.Publisher {
	cfg, err := publish.LoadConfig()
	if err != nil {
		log.Printf("[Publish] disabled: %v", err)
		return nil
	}
	if !cfg.IsEnabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := publish.NewClient(ctx, cfg)
	if err != nil {
		log.Printf("[Publish] disabled: %v", err)
		return nil
	}
	return client
}

func adminUsers() map[string]string {
	user := env.GetEnv("ADMIN_USER", "")
	password := env.GetEnv("ADMIN_PASSWORD", "")
	if user == "" || password == "" {
		return nil
	}
	return map[string]string{user: password}
}

func findBasePath() string {
	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/ignews to project root
		"../../../", // Fallback
	}

	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			return path
		}
	}
	panic("Could not find project root directory")
}
