package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tilemate_backend/internal/model"
	"tilemate_backend/internal/service"
	"tilemate_backend/pkg/subscription"
	"tilemate_backend/pkg/utils/jwt"
)

type SubscriptionController struct {
	DB       *gorm.DB
	Features *service.FeatureService
}

func NewSubscriptionController(db *gorm.DB, features *service.FeatureService) *SubscriptionController {
	return &SubscriptionController{DB: db, Features: features}
}

func (ctrl *SubscriptionController) ListPlans(c *fiber.Ctx) error {
	plans, err := model.ListActivePlans(ctrl.DB)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch subscription plans",
		})
	}

	return c.JSON(plans)
}

func (ctrl *SubscriptionController) GetMySubscription(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	var ledger model.UserSubscription
	if err := ctrl.DB.Where("user_id = ?", claims.UserID).
		Preload("Plan").First(&ledger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No subscription found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch subscription",
		})
	}

	return c.JSON(ledger)
}

// UseFeature consumes one unit of a metered feature for clients that track
// usage themselves (e.g. on-device 3D rendering).
func (ctrl *SubscriptionController) UseFeature(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	feature, err := subscription.ParseFeature(c.Params("feature"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	result, err := ctrl.Features.UseFeature(claims.UserID, feature)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not record feature usage",
		})
	}

	if !result.Allowed {
		return c.Status(fiber.StatusForbidden).JSON(result)
	}
	return c.JSON(result)
}

func (ctrl *SubscriptionController) FeatureRemaining(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	feature, err := subscription.ParseFeature(c.Params("feature"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	result, err := ctrl.Features.Remaining(claims.UserID, feature)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch feature usage",
		})
	}

	return c.JSON(result)
}
