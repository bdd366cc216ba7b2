package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	xssPattern       = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
)

type Config struct {
	MaxQueryLength      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects malformed tutor requests before they reach a handler.
// Ask bodies are parsed once and handed on through c.Locals("ask_request").
func Middleware(cfg Config) fiber.Handler {
	cfg = cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			if !allowedContentType(c.Get(fiber.HeaderContentType), cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		if id := sessionIDFrom(c); id != "" && !ValidSessionID(id) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid session_id",
			})
		}

		if c.Method() == fiber.MethodPost && strings.HasSuffix(c.Path(), "/tutor/ask") {
			var req AskRequest
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}
			if msg := CheckAsk(&req, cfg); msg != "" {
				if msg == errSuspicious {
					cfg.Logger.Warn("Potential XSS attempt", zap.String("ip", c.IP()))
				}
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
			}
			c.Locals("ask_request", req)
		}

		return c.Next()
	}
}

type AskRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Format    string `json:"format"`
}

const errSuspicious = "Invalid question content"

func (cfg Config) withDefaults() Config {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 2000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// CheckAsk sanitizes req in place and returns the client-facing reason it
// is rejected, or "" when it may be answered. Every transport that accepts
// questions runs it.
func CheckAsk(req *AskRequest, cfg Config) string {
	cfg = cfg.withDefaults()
	req.Question = sanitizeString(req.Question)
	switch {
	case req.Question == "":
		return "Question is required"
	case !utf8.ValidString(req.Question):
		return "Question must be valid UTF-8"
	case utf8.RuneCountInString(req.Question) > cfg.MaxQueryLength:
		return "Question exceeds maximum length"
	case req.SessionID != "" && !ValidSessionID(req.SessionID):
		return "Invalid session_id"
	}
	// HTML questions are reduced to text downstream, which drops scripts.
	if !strings.EqualFold(req.Format, "html") && xssPattern.MatchString(req.Question) {
		return errSuspicious
	}
	return ""
}

func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func sessionIDFrom(c *fiber.Ctx) string {
	if id := c.Get("X-Session-ID"); id != "" {
		return id
	}
	return c.Query("session_id")
}

func allowedContentType(contentType string, allowed []string) bool {
	if contentType == "" {
		return true
	}
	for _, a := range allowed {
		if strings.Contains(contentType, a) {
			return true
		}
	}
	return false
}

func sanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
