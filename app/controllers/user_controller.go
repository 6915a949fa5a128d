package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/shipnowhq/shipnow/app/models"
	"github.com/shipnowhq/shipnow/internal/pkg/billing"
	"github.com/shipnowhq/shipnow/internal/pkg/database"
	"github.com/shipnowhq/shipnow/internal/pkg/entitlements"
	"github.com/shipnowhq/shipnow/internal/pkg/usercontext"
	"github.com/shipnowhq/shipnow/internal/pkg/utils"
)

// HandleUserProfile renders the profile with the derived entitlement and the
// user's order history.
func HandleUserProfile(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	db := database.GetDB()
	user, err := models.FindUserByID(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("user lookup failed")
	}

	repo := billing.NewRepository(db)
	resolver := entitlements.NewResolver(repo)
	ent, err := resolver.GetEntitlement(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("entitlement lookup failed")
	}

	orders, err := repo.ListCompletedOrders(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("order lookup failed")
	}

	avatarURL := user.AvatarURL
	if avatarURL == "" {
		avatarURL = utils.GetGravatarURL(user.Email, 200)
	}

	data := viewData(c, "Profile")
	data["User"] = user
	data["AvatarURL"] = avatarURL
	data["Entitlement"] = ent
	data["Orders"] = orders

	return c.Render("user/profile", data, "layouts/main")
}
