package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConnectSrc(t *testing.T) {
	assert.Equal(t, "'self'", buildConnectSrc(nil))
	assert.Equal(t, "'self'", buildConnectSrc([]string{"*"}))
	assert.Equal(t,
		"'self' https://tutor.example.com wss://tutor.example.com http://localhost:3000 ws://localhost:3000",
		buildConnectSrc([]string{"https://tutor.example.com", "http://localhost:3000"}),
	)
}

func TestHeadersMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		dev      bool
		wantHSTS bool
	}{
		{"production", false, true},
		{"development", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(HeadersMiddleware(HeadersConfig{IsDevelopment: tt.dev}))
			app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)

			assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
			assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "connect-src 'self';")
			assert.Equal(t, tt.wantHSTS, resp.Header.Get("Strict-Transport-Security") != "")
		})
	}
}
