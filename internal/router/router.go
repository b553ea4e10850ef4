package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/tutorlink-api/internal/config"
	"github.com/noah-isme/tutorlink-api/internal/handler"
	"github.com/noah-isme/tutorlink-api/internal/middleware"
	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	MessagingHandler          *handler.MessagingHandler
	AuthorizationAuditHandler *handler.AuthorizationAuditHandler
	JWTMiddleware             fiber.Handler
	HealthDependencies        []handler.HealthDependency
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthDependencies...))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	authenticated := []fiber.Handler{jwtMiddleware, middleware.RequireAuth()}

	if deps.MessagingHandler != nil {
		window := cfg.MessagingRateLimitEvery
		if window <= 0 {
			window = time.Minute
		}
		sendLimiter := middleware.RateLimit("messages:send", cfg.MessagingRateLimitMax, window)

		conversations := api.Group("/conversations", authenticated...)
		deps.MessagingHandler.RegisterConversations(conversations, sendLimiter)

		messages := api.Group("/messages", authenticated...)
		deps.MessagingHandler.RegisterMessages(messages)
	}

	if deps.AuthorizationAuditHandler != nil {
		admin := api.Group("/admin", append(authenticated, middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin))...)
		deps.AuthorizationAuditHandler.Register(admin.Group("/authorization-logs"))
	}
}
