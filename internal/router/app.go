package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/tutorlink-api/internal/config"
)

// NewApp builds the fiber application. Proxy headers are only read when the
// request comes from one of the configured trusted proxies.
func NewApp(cfg config.Config) *fiber.App {
	fiberCfg := fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	}

	if cfg.BehindProxy() {
		fiberCfg.ProxyHeader = cfg.ProxyHeader
		fiberCfg.EnableTrustedProxyCheck = true
		fiberCfg.TrustedProxies = cfg.TrustedProxies
		fiberCfg.EnableIPValidation = true
	}

	return fiber.New(fiberCfg)
}
