package router

import (
	"strings"
	"time"

	"github.com/shipnowhq/shipnow/app/controllers"
	"github.com/shipnowhq/shipnow/internal/pkg/env"
	"github.com/shipnowhq/shipnow/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"
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
			return strings.HasPrefix(c.Path(), "/api/") || c.Path() == "/webhooks/stripe"
		},
	}

	group := app.Group("", cors.New(), csrf.New(csrfConf))
	group.Get("/", loggedInMiddleware, controllers.HandleHome)
	group.Get("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Post("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Get("/register", loggedInMiddleware, controllers.HandleAuthRegister)
	group.Post("/register", loggedInMiddleware, controllers.HandleAuthRegister)

	// Checkout entry points post a price id, so they stay behind CSRF
	group.Post("/checkout", middleware.RequireAuth, controllers.HandleCreateCheckoutSession)
	group.Get("/checkout/success", middleware.RequireAuth, controllers.HandleCheckoutSuccess)
	group.Post("/billing/portal", middleware.RequireAuth, controllers.HandleCustomerPortal)

	group.Get("/user/profile", middleware.RequireAuth, controllers.HandleUserProfile)
}
