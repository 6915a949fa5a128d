package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/shipnowhq/shipnow/app/repository"
	"github.com/shipnowhq/shipnow/internal/pkg/statistics"
)

// HandleHome renders the landing page with the price table and the cached
// social-proof numbers.
func HandleHome(c *fiber.Ctx) error {
	data := viewData(c, "")
	data["Prices"] = getBillingService().Prices().List()
	data["Stats"] = statistics.GetStatistics()

	return c.Render("index", data, "layouts/main")
}

// HandlePricing renders the pricing page from the immutable price table.
func HandlePricing(c *fiber.Ctx) error {
	data := viewData(c, "Pricing")
	data["Prices"] = getBillingService().Prices().List()

	return c.Render("pricing", data, "layouts/main")
}

// HandlePageDisplay renders a legal/marketing page by slug.
func HandlePageDisplay(c *fiber.Ctx) error {
	slug := c.Params("slug")

	page, err := repository.GetGlobalFactory().GetPageRepository().GetBySlug(slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).Render("404", viewData(c, "Not found"), "layouts/main")
		}
		return c.Status(fiber.StatusInternalServerError).SendString("page lookup failed")
	}

	data := viewData(c, page.Title)
	data["Page"] = page

	return c.Render("page", data, "layouts/main")
}
