package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/utils"
)

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := models.NormalizeRole(role)
		if normalized != models.RoleUnassigned {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if c.Locals("user_id") == nil {
			return utils.Unauthenticated(c)
		}
		role := normalizeRoleValue(c.Locals("user_role"))
		if _, ok := allowed[role]; !ok {
			return utils.AuthorizationFailed(c, "insufficient permissions", utils.AuthorizationFailedDetails{
				Reason:       "insufficient_role",
				ResourceType: "Route",
			})
		}
		return c.Next()
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return models.NormalizeRole(v)
	case fmt.Stringer:
		return models.NormalizeRole(v.String())
	default:
		if value == nil {
			return models.RoleUnassigned
		}
		return models.NormalizeRole(fmt.Sprintf("%v", value))
	}
}
