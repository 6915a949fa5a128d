package router

import (
	"github.com/shipnowhq/shipnow/app/controllers"
	"github.com/shipnowhq/shipnow/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Public static pages
	app.Get("/pricing", loggedInMiddleware, controllers.HandlePricing)
	app.Get("/page/:slug", loggedInMiddleware, controllers.HandlePageDisplay)

	// Account activation link from the welcome mail
	app.Get("/activate", loggedInMiddleware, controllers.HandleAuthActivate)

	// Auth
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Social OAuth
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
}
