package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/tutorlink-api/internal/config"
	"github.com/noah-isme/tutorlink-api/internal/utils"
)

const healthCheckTimeout = 2 * time.Second

// HealthDependency is a backing service checked by the health endpoint.
type HealthDependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Service      string            `json:"service"`
	Environment  string            `json:"environment"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthCheck returns a handler that reports application health information.
// Any failing dependency turns the response into a 503 with status "degraded".
func HealthCheck(cfg config.Config, deps ...HealthDependency) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		if len(deps) > 0 {
			ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
			defer cancel()

			payload.Dependencies = make(map[string]string, len(deps))
			for _, dep := range deps {
				if dep.Ping == nil {
					continue
				}
				if err := dep.Ping(ctx); err != nil {
					payload.Dependencies[dep.Name] = "down"
					payload.Status = "degraded"
					continue
				}
				payload.Dependencies[dep.Name] = "up"
			}
		}

		if payload.Status != "ok" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(utils.APIResponse{
				Success: false,
				Data:    payload,
				Message: "service degraded",
			})
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
