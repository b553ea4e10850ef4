package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/tutorlink-api/internal/utils"
)

// RateLimit creates a per-user rate limiter keyed by the authenticated user id, or the client IP otherwise.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			key := RequestInfoFromContext(c.UserContext()).IPAddress
			if key == "" {
				key = c.IP()
			}
			switch id := c.Locals("user_id").(type) {
			case uint:
				if id > 0 {
					key = fmt.Sprintf("user:%d", id)
				}
			case int:
				if id > 0 {
					key = fmt.Sprintf("user:%d", id)
				}
			}
			return fmt.Sprintf("%s:%s", identifier, key)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many requests, slow down")
		},
	})
}
