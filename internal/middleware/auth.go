package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/tutorlink-api/internal/utils"
)

// RequireAuth rejects requests that reach it without an authenticated user id.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch id := c.Locals("user_id").(type) {
		case uint:
			if id > 0 {
				return c.Next()
			}
		case int:
			if id > 0 {
				return c.Next()
			}
		}
		return utils.Unauthenticated(c)
	}
}
