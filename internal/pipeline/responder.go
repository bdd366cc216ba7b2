package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/analysis"
	"github.com/tutor-agent/backend/internal/llm"
	"github.com/tutor-agent/backend/pkg/logger"
)

const BaseResponse = "Here's your explanation based on the input."

type Question struct {
	Text     string
	Analysis analysis.Result
	Similar  string
}

// Responder produces the base explanation before engagement shaping.
type Responder interface {
	Respond(ctx context.Context, q Question) (string, error)
}

type PlaceholderResponder struct{}

func (PlaceholderResponder) Respond(context.Context, Question) (string, error) {
	return BaseResponse, nil
}

type Explainer interface {
	Explain(ctx context.Context, req llm.ExplainRequest) (string, error)
}

// LLMResponder asks the language model for an explanation and falls back to
// the placeholder text when it fails.
type LLMResponder struct {
	explainer Explainer
}

func NewLLMResponder(explainer Explainer) *LLMResponder {
	return &LLMResponder{explainer: explainer}
}

func (r *LLMResponder) Respond(ctx context.Context, q Question) (string, error) {
	text, err := r.explainer.Explain(ctx, llm.ExplainRequest{
		Question:   q.Text,
		KeyPhrases: q.Analysis.KeyPhrases,
		Triples:    q.Analysis.Triples,
		TopicType:  q.Analysis.TopicType,
		Similar:    q.Similar,
	})
	if err != nil {
		logger.Warn("Explanation generation failed, using placeholder", zap.Error(err))
		return BaseResponse, nil
	}
	return text, nil
}
