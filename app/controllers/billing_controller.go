package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/shipnowhq/shipnow/internal/pkg/billing"
	"github.com/shipnowhq/shipnow/internal/pkg/database"
	"github.com/shipnowhq/shipnow/internal/pkg/entitlements"
	"github.com/shipnowhq/shipnow/internal/pkg/env"
	"github.com/shipnowhq/shipnow/internal/pkg/session"
	"github.com/shipnowhq/shipnow/internal/pkg/usercontext"
)

var billingService *billing.Service

// SetBillingService overrides the lazily constructed service, used by tests.
func SetBillingService(svc *billing.Service) {
	billingService = svc
}

func getBillingService() *billing.Service {
	if billingService == nil {
		billingService = billing.NewServiceFromDB(database.GetDB())
	}
	return billingService
}

// HandleStripeWebhook receives provider event deliveries. Signature failures
// are rejected with 400; events the reconciler cannot process return 500 so
// the provider retries; everything else, duplicates included, returns 200.
func HandleStripeWebhook(c *fiber.Ctx) error {
	sigHeader := strings.TrimSpace(c.Get("Stripe-Signature"))
	if sigHeader == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_signature"})
	}

	svc := getBillingService()
	event, err := svc.VerifyWebhook(c.BodyRaw(), sigHeader)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	if err := svc.HandleEvent(event); err != nil {
		if errors.Is(err, billing.ErrUnknownPrice) {
			// Configuration drift; the provider retries after the price
			// table is fixed.
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "unknown_price"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

type checkoutRequest struct {
	PriceID    string `json:"price_id" form:"price_id"`
	SuccessURL string `json:"success_url" form:"success_url"`
	CancelURL  string `json:"cancel_url" form:"cancel_url"`
}

// HandleCreateCheckoutSession opens a hosted checkout for the logged-in user.
// JSON clients get the session handle back, form posts from the pricing page
// are redirected straight to the provider.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid body"})
	}

	base := publicBaseURL()
	if req.SuccessURL == "" {
		req.SuccessURL = base + "/checkout/success"
	}
	if req.CancelURL == "" {
		req.CancelURL = base + "/pricing"
	}

	result, err := getBillingService().CreateCheckoutSession(billing.CheckoutParams{
		PriceID:    req.PriceID,
		UserID:     userCtx.UserID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		if errors.Is(err, billing.ErrUnknownPrice) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_price"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed"})
	}

	if c.Is("json") {
		return c.Status(fiber.StatusOK).JSON(result)
	}
	return c.Redirect(result.SessionURL, fiber.StatusSeeOther)
}

// HandleCustomerPortal opens the provider self-service portal.
func HandleCustomerPortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	url, err := getBillingService().CreatePortalSession(billing.PortalParams{
		UserID:    userCtx.UserID,
		ReturnURL: publicBaseURL() + "/user/profile",
	})
	if err != nil {
		if errors.Is(err, billing.ErrNoCustomerFound) {
			if c.Is("json") {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_billing_customer"})
			}
			return flash.WithError(c, fiber.Map{
				"type":    "error",
				"message": "No billing account found. Complete a purchase first.",
			}).Redirect("/pricing")
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "portal_failed"})
	}

	if c.Is("json") {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"portal_url": url})
	}
	return c.Redirect(url, fiber.StatusSeeOther)
}

// HandleSubscriptionStatus reports the derived entitlement for the logged-in
// user, computed fresh from billing state.
func HandleSubscriptionStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	resolver := entitlements.NewResolver(billing.NewRepository(database.GetDB()))
	ent, err := resolver.GetEntitlement(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_lookup_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(ent)
}

// HandleCheckoutSuccess lands the user after a completed checkout. The
// session plan cache is dropped so the next page load re-derives it from the
// reconciled state.
func HandleCheckoutSuccess(c *fiber.Ctx) error {
	_ = session.DeleteSessionValue(c, usercontext.KeyUserPlan)

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "Payment received. Your plan will be active in a moment.",
	}).Redirect("/user/profile")
}

func publicBaseURL() string {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}
	return base
}
