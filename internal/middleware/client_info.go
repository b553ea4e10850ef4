package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// RequestInfo carries the caller network details recorded on audit rows.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

type requestInfoKey struct{}

var clientInfoKey = requestInfoKey{}

// ClientInfo binds the caller IP address and user agent to the request context.
// Forwarding headers are honoured only through the app's trusted proxy settings.
func ClientInfo() fiber.Handler {
	return func(c *fiber.Ctx) error {
		info := RequestInfo{
			IPAddress: c.IP(),
			UserAgent: strings.TrimSpace(c.Get(fiber.HeaderUserAgent)),
		}
		c.SetUserContext(ContextWithRequestInfo(c.UserContext(), info))
		return c.Next()
	}
}

// ContextWithRequestInfo attaches request network details to the context.
func ContextWithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientInfoKey, info)
}

// RequestInfoFromContext returns the request network details, if present.
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	if ctx == nil {
		return RequestInfo{}
	}
	if info, ok := ctx.Value(clientInfoKey).(RequestInfo); ok {
		return info
	}
	return RequestInfo{}
}
