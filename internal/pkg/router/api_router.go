package router

import (
	apiv1 "github.com/shipnowhq/shipnow/internal/api/v1"
	"github.com/shipnowhq/shipnow/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer()

	v1.Get("/ping", apiServer.GetPing)
	v1.Post("/checkout", middleware.RequireAPISessionAuth, apiServer.PostCheckoutSession)
	v1.Post("/billing/portal", middleware.RequireAPISessionAuth, apiServer.PostBillingPortal)
	v1.Get("/subscription/status", middleware.RequireAPISessionAuth, apiServer.GetSubscriptionStatus)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
