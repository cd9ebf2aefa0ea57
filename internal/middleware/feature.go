package middleware

import (
	"github.com/gofiber/fiber/v2"

	"tilemate_backend/internal/service"
	"tilemate_backend/pkg/subscription"
	"tilemate_backend/pkg/utils/jwt"
)

// ConsumeFeature gates a route on the metered feature counters: one unit is
// consumed before the handler runs. Attach to the endpoints that create the
// billable artefact (projects, room photos, manual estimates).
func ConsumeFeature(gate *service.FeatureService, feature subscription.Feature) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := c.Locals("user").(*jwt.Claims)

		result, err := gate.UseFeature(claims.UserID, feature)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Could not check feature access",
			})
		}

		if !result.Allowed {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "Feature not available on your subscription",
				"feature": feature,
				"reason":  result.Reason,
			})
		}

		c.Locals("feature_remaining", result.Remaining)
		return c.Next()
	}
}
