package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/pkg/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	deps map[string]Pinger
}

// NewHealthHandler reports on the named backing stores. Only configured
// stores should be passed.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "down"
			status = "degraded"
			continue
		}
		checks[name] = "up"
	}

	return c.JSON(fiber.Map{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}
