package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/shipnowhq/shipnow/app/controllers"
)

// Pong is the health check response body.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the v1 endpoints
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostCheckoutSession creates a provider checkout session for the
// authenticated user. Security is enforced via session middleware attached
// in the router.
func (s *APIServer) PostCheckoutSession(c *fiber.Ctx) error {
	return controllers.HandleCreateCheckoutSession(c)
}

// PostBillingPortal creates a provider billing portal session so the user
// can manage their subscription.
func (s *APIServer) PostBillingPortal(c *fiber.Ctx) error {
	return controllers.HandleCustomerPortal(c)
}

// GetSubscriptionStatus returns the derived entitlement for the
// authenticated user.
func (s *APIServer) GetSubscriptionStatus(c *fiber.Ctx) error {
	return controllers.HandleSubscriptionStatus(c)
}
