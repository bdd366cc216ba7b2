package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/engagement"
	"github.com/tutor-agent/backend/internal/ingestion"
	"github.com/tutor-agent/backend/internal/memory"
	"github.com/tutor-agent/backend/internal/metrics"
	"github.com/tutor-agent/backend/internal/middleware/validation"
	"github.com/tutor-agent/backend/internal/pipeline"
	"github.com/tutor-agent/backend/internal/storage/models"
	"github.com/tutor-agent/backend/pkg/logger"
)

type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type HistoryStore interface {
	GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Interaction, error)
	StoreFeedback(ctx context.Context, feedback *models.Feedback) error
}

type AffectPublisher interface {
	SetAffect(ctx context.Context, sessionID, label string, ttl time.Duration) error
}

var knownLabels = map[string]bool{
	engagement.LabelAngry:    true,
	engagement.LabelDisgust:  true,
	engagement.LabelFear:     true,
	engagement.LabelHappy:    true,
	engagement.LabelSad:      true,
	engagement.LabelSurprise: true,
	engagement.LabelNeutral:  true,
}

type TutorHandler struct {
	engine    Runner
	history   HistoryStore
	affect    AffectPublisher
	affectTTL time.Duration
}

// NewTutorHandler wires the HTTP surface. history and affect may be nil,
// in which case their endpoints answer 503.
func NewTutorHandler(engine Runner, history HistoryStore, affect AffectPublisher, affectTTL time.Duration) *TutorHandler {
	return &TutorHandler{
		engine:    engine,
		history:   history,
		affect:    affect,
		affectTTL: affectTTL,
	}
}

func (h *TutorHandler) Ask(c *fiber.Ctx) error {
	req, ok := c.Locals("ask_request").(validation.AskRequest)
	if !ok {
		if err := c.BodyParser(&req); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	result, status, err := ask(c.UserContext(), h.engine, req)
	if err != nil {
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(result)
}

// ask cleans the question, runs the pipeline and maps failures to an HTTP
// status. It is shared by the REST and websocket surfaces.
func ask(ctx context.Context, engine Runner, req validation.AskRequest) (*pipeline.Result, int, error) {
	question, err := ingestion.CleanQuestion(req.Format, req.Question)
	if err != nil {
		return nil, fiber.StatusBadRequest, err
	}

	result, err := engine.Run(ctx, pipeline.Request{SessionID: req.SessionID, Text: question})
	switch {
	case err == nil:
		return result, fiber.StatusOK, nil
	case errors.Is(err, pipeline.ErrEmptyQuery):
		return nil, fiber.StatusBadRequest, errors.New("question is required")
	case errors.Is(err, memory.ErrDimensionMismatch):
		logger.Error("Session memory rejected embedding", zap.String("session_id", req.SessionID), zap.Error(err))
		return nil, fiber.StatusInternalServerError, errors.New("failed to process question")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, fiber.StatusRequestTimeout, errors.New("request cancelled")
	default:
		logger.Error("Failed to process question", zap.Error(err))
		return nil, fiber.StatusInternalServerError, errors.New("failed to process question")
	}
}

func (h *TutorHandler) History(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "History is not enabled",
		})
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	records, err := h.history.GetHistory(c.UserContext(), sessionID, c.QueryInt("limit", 0))
	if err != nil {
		logger.Error("Failed to load history", zap.String("session_id", sessionID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"history":    records,
	})
}

func (h *TutorHandler) Engagement(c *fiber.Ctx) error {
	if h.affect == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Engagement sensing is not enabled",
		})
	}

	var req struct {
		SessionID string `json:"session_id"`
		Label     string `json:"label"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if !validation.ValidSessionID(req.SessionID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid session_id",
		})
	}
	if !knownLabels[req.Label] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown emotion label",
		})
	}

	if err := h.affect.SetAffect(c.UserContext(), req.SessionID, req.Label, h.affectTTL); err != nil {
		logger.Error("Failed to store affect label", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store engagement",
		})
	}

	return c.JSON(fiber.Map{
		"session_id": req.SessionID,
		"label":      req.Label,
		"score":      engagement.Score(req.Label),
	})
}

func (h *TutorHandler) Feedback(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "History is not enabled",
		})
	}

	var fb models.Feedback
	if err := c.BodyParser(&fb); err != nil || fb.InteractionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "interaction_id is required",
		})
	}

	if err := h.history.StoreFeedback(c.UserContext(), &fb); err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	if fb.Helpful {
		metrics.FeedbackTotal.WithLabelValues("true").Inc()
	} else {
		metrics.FeedbackTotal.WithLabelValues("false").Inc()
	}
	return c.SendStatus(fiber.StatusNoContent)
}
