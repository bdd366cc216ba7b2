package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	csp := "default-src 'self'; " +
		"script-src 'self'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data: https:; " +
		"font-src 'self' data:; " +
		"connect-src " + buildConnectSrc(cfg.AllowedOrigins) + "; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// The capture client never needs these from the API origin.
		c.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Set("Content-Security-Policy", csp)

		return c.Next()
	}
}

// buildConnectSrc allows the API itself plus the configured origins over
// both http(s) and the matching websocket scheme.
func buildConnectSrc(origins []string) string {
	sources := []string{"'self'"}
	for _, origin := range origins {
		if origin == "" || origin == "*" {
			continue
		}
		sources = append(sources, origin)
		switch {
		case strings.HasPrefix(origin, "https://"):
			sources = append(sources, "wss://"+strings.TrimPrefix(origin, "https://"))
		case strings.HasPrefix(origin, "http://"):
			sources = append(sources, "ws://"+strings.TrimPrefix(origin, "http://"))
		}
	}
	return strings.Join(sources, " ")
}
