package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tutor-agent/backend/internal/adaptive"
	"github.com/tutor-agent/backend/internal/analysis"
	"github.com/tutor-agent/backend/internal/embedding"
	"github.com/tutor-agent/backend/internal/engagement"
	"github.com/tutor-agent/backend/internal/kg/builder"
	"github.com/tutor-agent/backend/internal/memory"
	"github.com/tutor-agent/backend/internal/metrics"
	"github.com/tutor-agent/backend/internal/session"
	"github.com/tutor-agent/backend/internal/storage/models"
	"github.com/tutor-agent/backend/pkg/logger"
)

var ErrEmptyQuery = errors.New("query is empty")

type Analyzer interface {
	Analyze(ctx context.Context, text string) (analysis.Result, error)
}

type GraphBuilder interface {
	BuildAndRender(ctx context.Context, id string, keyPhrases []string) (builder.ConceptGraph, string, error)
}

type MemoryProvider interface {
	Memory(ctx context.Context, sessionID string) *memory.Memory
}

type EngagementSource interface {
	Read(ctx context.Context, sessionID string) engagement.Reading
}

type Archiver interface {
	Append(ctx context.Context, sessionID string, record memory.Record) error
}

type HistoryRecorder interface {
	InsertInteraction(ctx context.Context, rec *models.Interaction) error
}

// Deps wires the engine. Analyzer, Graph, Embedder and Memories are
// required; the rest fall back to neutral behaviour when nil.
type Deps struct {
	Analyzer   Analyzer
	Graph      GraphBuilder
	Embedder   embedding.Embedder
	Memories   MemoryProvider
	Engagement EngagementSource
	Responder  Responder
	Archive    Archiver
	History    HistoryRecorder
}

type Request struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type Result struct {
	ID              string               `json:"id"`
	SessionID       string               `json:"session_id"`
	Question        string               `json:"question"`
	KeyPhrases      []string             `json:"key_phrases"`
	Triples         []analysis.Triple    `json:"triples"`
	TopicType       analysis.TopicType   `json:"topic_type"`
	ConceptGraph    builder.ConceptGraph `json:"concept_graph"`
	DiagramRef      string               `json:"diagram_ref,omitempty"`
	SimilarQuestion string               `json:"similar_question,omitempty"`
	Engagement      float64              `json:"engagement"`
	Level           adaptive.Level       `json:"level"`
	Response        string               `json:"response"`
	Warnings        []string             `json:"warnings,omitempty"`
	LatencyMS       int64                `json:"latency_ms"`
	CreatedAt       time.Time            `json:"created_at"`
}

type Engine struct {
	deps Deps
	now  func() time.Time
}

func NewEngine(deps Deps) (*Engine, error) {
	switch {
	case deps.Analyzer == nil:
		return nil, errors.New("pipeline: analyzer is required")
	case deps.Graph == nil:
		return nil, errors.New("pipeline: graph builder is required")
	case deps.Embedder == nil:
		return nil, errors.New("pipeline: embedder is required")
	case deps.Memories == nil:
		return nil, errors.New("pipeline: memory provider is required")
	}
	if deps.Responder == nil {
		deps.Responder = PlaceholderResponder{}
	}
	return &Engine{deps: deps, now: time.Now}, nil
}

// Run answers one question. Only an empty question, a malformed embedding
// and caller cancellation fail the run; every other step degrades and is
// reported in Result.Warnings.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	start := e.now()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		metrics.PipelineTotal.WithLabelValues("rejected").Inc()
		return nil, ErrEmptyQuery
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = session.DefaultSessionID
	}

	res := &Result{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Question:  text,
		CreatedAt: start,
	}
	log := logger.GetLogger().With(zap.String("run_id", res.ID), zap.String("session_id", sessionID))
	log.Info("Running tutor pipeline", zap.Int("length", len(text)))

	var (
		analyzed analysis.Result
		reading  engagement.Reading
		warns    = newStepWarnings()
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		analyzed, err = e.deps.Analyzer.Analyze(gctx, text)
		if err != nil {
			warns.add("analysis", err)
		}

		res.ConceptGraph, res.DiagramRef, err = e.deps.Graph.BuildAndRender(gctx, res.ID, analyzed.KeyPhrases)
		if err != nil {
			warns.add("render", err)
		}
		return nil
	})

	g.Go(func() error {
		similar, err := e.recall(gctx, sessionID, text, warns)
		if err != nil {
			return err
		}
		res.SimilarQuestion = similar
		return nil
	})

	g.Go(func() error {
		reading = e.readEngagement(gctx, sessionID)
		if reading.Err != nil {
			warns.add("engagement", reading.Err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		metrics.PipelineTotal.WithLabelValues("failed").Inc()
		log.Error("Pipeline failed", zap.Error(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		metrics.PipelineTotal.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("pipeline cancelled: %w", err)
	}

	res.KeyPhrases = analyzed.KeyPhrases
	if res.KeyPhrases == nil {
		res.KeyPhrases = []string{}
	}
	res.Triples = analyzed.Triples
	if res.Triples == nil {
		res.Triples = []analysis.Triple{}
	}
	if analyzed.TopicType == "" {
		analyzed.TopicType = analysis.ClassifyTopic(text)
	}
	res.TopicType = analyzed.TopicType
	res.Engagement = engagement.Clamp(reading.Score)
	res.Level = adaptive.Classify(res.Engagement)

	base, err := e.deps.Responder.Respond(ctx, Question{Text: text, Analysis: analyzed, Similar: res.SimilarQuestion})
	if err != nil || base == "" {
		warns.add("respond", err)
		base = BaseResponse
	}
	res.Response = adaptive.Shape(base, res.Engagement)

	res.Warnings = warns.list()
	res.LatencyMS = e.now().Sub(start).Milliseconds()

	e.record(ctx, res, log)
	e.observe(res)

	log.Info("Pipeline completed",
		zap.String("topic_type", string(res.TopicType)),
		zap.Int("key_phrases", len(res.KeyPhrases)),
		zap.Int("triples", len(res.Triples)),
		zap.Bool("similar_found", res.SimilarQuestion != ""),
		zap.Float64("engagement", res.Engagement),
		zap.Strings("warnings", res.Warnings),
		zap.Int64("latency_ms", res.LatencyMS),
	)
	return res, nil
}

// recall embeds the question, looks up the most similar earlier question in
// the session and stores the current one. Embedding failures skip the step;
// a malformed embedding is a hard failure.
func (e *Engine) recall(ctx context.Context, sessionID, text string, w *stepWarnings) (string, error) {
	vec, err := e.deps.Embedder.Embed(ctx, text)
	if err != nil {
		w.add("embedding", err)
		return "", nil
	}

	mem := e.deps.Memories.Memory(ctx, sessionID)
	similar, found, err := mem.Recall(text, vec)
	if err != nil {
		return "", fmt.Errorf("session memory: %w", err)
	}

	if found {
		metrics.MemoryRecalls.WithLabelValues("hit").Inc()
	} else {
		metrics.MemoryRecalls.WithLabelValues("miss").Inc()
	}

	if e.deps.Archive != nil {
		if err := e.deps.Archive.Append(ctx, sessionID, memory.Record{Utterance: text, Embedding: vec}); err != nil {
			w.add("archive", err)
		}
	}

	if !found {
		return "", nil
	}
	return similar, nil
}

func (e *Engine) readEngagement(ctx context.Context, sessionID string) engagement.Reading {
	if e.deps.Engagement == nil {
		return engagement.Reading{Score: engagement.DefaultScore}
	}
	return e.deps.Engagement.Read(ctx, sessionID)
}

func (e *Engine) record(ctx context.Context, res *Result, log *zap.Logger) {
	if e.deps.History == nil {
		return
	}
	err := e.deps.History.InsertInteraction(ctx, &models.Interaction{
		ID:              res.ID,
		SessionID:       res.SessionID,
		Question:        res.Question,
		KeyPhrases:      res.KeyPhrases,
		Triples:         res.Triples,
		TopicType:       string(res.TopicType),
		SimilarQuestion: res.SimilarQuestion,
		Engagement:      res.Engagement,
		Response:        res.Response,
		DiagramRef:      res.DiagramRef,
		LatencyMS:       res.LatencyMS,
		CreatedAt:       res.CreatedAt,
	})
	if err != nil {
		metrics.DegradedSteps.WithLabelValues("history").Inc()
		log.Warn("Failed to record interaction", zap.Error(err))
	}
}

func (e *Engine) observe(res *Result) {
	metrics.PipelineTotal.WithLabelValues("success").Inc()
	metrics.PipelineDuration.WithLabelValues(string(res.TopicType)).Observe(float64(res.LatencyMS) / 1000)
	metrics.KeyPhrasesCount.Observe(float64(len(res.KeyPhrases)))
	metrics.EngagementScore.Observe(res.Engagement)
	metrics.ResponseLevel.WithLabelValues(string(res.Level)).Inc()
}
