package handlers

import (
	"context"
	"net"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/middleware/validation"
	"github.com/tutor-agent/backend/internal/pipeline"
	"github.com/tutor-agent/backend/pkg/logger"
)

// MessageLimiter meters questions arriving on an open socket.
type MessageLimiter interface {
	Allow(key string) bool
}

// WebSocketHandler streams answers over a socket. Each ask message passes the
// same checks and rate limit as a REST ask; a nil limiter disables metering.
type WebSocketHandler struct {
	engine  Runner
	checks  validation.Config
	limiter MessageLimiter
}

func NewWebSocketHandler(engine Runner, checks validation.Config, limiter MessageLimiter) *WebSocketHandler {
	return &WebSocketHandler{engine: engine, checks: checks, limiter: limiter}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
			Question  string `json:"question"`
			Format    string `json:"format"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "ask" {
			continue
		}

		req := validation.AskRequest{SessionID: msg.SessionID, Question: msg.Question, Format: msg.Format}
		if reason := validation.CheckAsk(&req, h.checks); reason != "" {
			h.sendError(c, reason)
			continue
		}
		if h.limiter != nil && !h.limiter.Allow(limitKey(c, req.SessionID)) {
			logger.Warn("WebSocket rate limit exceeded", zap.String("session_id", req.SessionID))
			h.sendError(c, "Rate limit exceeded. Please try again later.")
			continue
		}

		if err := h.streamResponse(c, req); err != nil {
			logger.Warn("Failed to stream response", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, req validation.AskRequest) error {
	if err := h.sendChunk(c, "status", "Thinking..."); err != nil {
		return err
	}

	result, _, err := ask(context.Background(), h.engine, req)
	if err != nil {
		h.sendError(c, err.Error())
		return nil
	}

	words := splitIntoWords(result.Response)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, result)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, result *pipeline.Result) error {
	return c.WriteJSON(map[string]interface{}{
		"type":   "complete",
		"result": result,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	_ = c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

// limitKey shares buckets with the REST limiter: by session when one is
// given, else by client IP.
func limitKey(c *websocket.Conn, sessionID string) string {
	if sessionID != "" {
		return "session:" + sessionID
	}
	addr := c.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// splitIntoWords splits on spaces and keeps newlines as their own tokens so
// the adaptive markers arrive on their own line.
func splitIntoWords(text string) []string {
	words := []string{}
	current := []rune{}

	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	for _, r := range text {
		switch r {
		case ' ':
			flush()
		case '\n':
			flush()
			words = append(words, "\n")
		default:
			current = append(current, r)
		}
	}
	flush()

	return words
}
