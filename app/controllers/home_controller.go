package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ignews/internal/pkg/billing"
	"github.com/ManuelReschke/ignews/internal/pkg/viewmodel"
)

// PriceSource returns the subscription price.
type PriceSource interface {
	Price(ctx context.Context) (*billing.Price, error)
}

type HomeController struct {
	prices         PriceSource
	publishableKey string
}

// NewHomeController takes the Stripe publishable key used by the checkout
// redirect in the browser.
func NewHomeController(prices PriceSource, publishableKey string) *HomeController {
	return &HomeController{prices: prices, publishableKey: publishableKey}
}

// HandleHome renders the landing page. Without a price the subscribe button
// is still shown.
func (hc *HomeController) HandleHome(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	price, err := hc.prices.Price(ctx)
	if err != nil {
		log.Warnf("[Home] price unavailable: %v", err)
	}

	return c.Render("home", fiber.Map{
		"Layout": viewmodel.NewLayout(c, "Home", &viewmodel.OpenGraph{
			Title:       "News about the React world",
			Description: "Get access to all the publications",
		}),
		"Price":           price,
		"StripePublicKey": hc.publishableKey,
	}, "layouts/main")
}
