package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tutor-agent/backend/internal/adaptive"
	"github.com/tutor-agent/backend/internal/analysis"
	"github.com/tutor-agent/backend/internal/embedding"
	"github.com/tutor-agent/backend/internal/engagement"
	"github.com/tutor-agent/backend/internal/kg/builder"
	"github.com/tutor-agent/backend/internal/llm"
	"github.com/tutor-agent/backend/internal/memory"
	"github.com/tutor-agent/backend/internal/nlp/prose"
	"github.com/tutor-agent/backend/internal/session"
	"github.com/tutor-agent/backend/internal/storage/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubAnalyzer struct {
	result analysis.Result
	err    error
}

func (s stubAnalyzer) Analyze(context.Context, string) (analysis.Result, error) {
	return s.result, s.err
}

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, string, builder.ConceptGraph) (string, error) {
	return "", errors.New("graphviz missing")
}

type vectorEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (v vectorEmbedder) Name() string { return "fixed" }

func (v vectorEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.vectors[text], nil
}

type recordingArchive struct {
	mu      sync.Mutex
	records []memory.Record
	err     error
}

func (r *recordingArchive) Append(_ context.Context, _ string, rec memory.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

type recordingHistory struct {
	mu    sync.Mutex
	items []*models.Interaction
}

func (r *recordingHistory) InsertInteraction(_ context.Context, rec *models.Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, rec)
	return nil
}

type stubExplainer struct {
	text string
	err  error
	got  llm.ExplainRequest
}

func (s *stubExplainer) Explain(_ context.Context, req llm.ExplainRequest) (string, error) {
	s.got = req
	return s.text, s.err
}

func sensor(label string, err error) *engagement.Monitor {
	return engagement.NewMonitor(engagement.SensorFunc(func(context.Context, string) (string, error) {
		return label, err
	}), 50*time.Millisecond)
}

func newRegistry(t *testing.T) *session.Registry {
	t.Helper()
	r, err := session.NewRegistry(memory.Config{}, 0, nil)
	require.NoError(t, err)
	return r
}

func newEngine(t *testing.T, deps Deps) *Engine {
	t.Helper()
	if deps.Analyzer == nil {
		deps.Analyzer = analysis.NewExtractor(prose.NewAnalyzer(), nil, nil, 0)
	}
	if deps.Graph == nil {
		deps.Graph = builder.NewBuilder(nil)
	}
	if deps.Embedder == nil {
		deps.Embedder = embedding.NewHashingEmbedder(64)
	}
	if deps.Memories == nil {
		deps.Memories = newRegistry(t)
	}
	e, err := NewEngine(deps)
	require.NoError(t, err)
	return e
}

func TestEngine_PhotosynthesisWithBrokenCamera(t *testing.T) {
	e := newEngine(t, Deps{
		Engagement: sensor("", errors.New("camera unavailable")),
	})

	res, err := e.Run(context.Background(), Request{SessionID: "s1", Text: "How does photosynthesis work?"})
	require.NoError(t, err)

	assert.Equal(t, analysis.TopicProcess, res.TopicType)
	assert.Equal(t, 0.5, res.Engagement)
	assert.Equal(t, adaptive.LevelStandard, res.Level)
	assert.Equal(t, BaseResponse, res.Response)
	assert.Equal(t, []string{"photosynthesis work"}, res.KeyPhrases)
	assert.Equal(t, []string{"photosynthesis work"}, res.ConceptGraph.Nodes)
	assert.Empty(t, res.ConceptGraph.Edges)
	assert.Empty(t, res.SimilarQuestion)
	assert.Contains(t, res.Warnings, "engagement")
	assert.NotEmpty(t, res.ID)
}

func TestEngine_EmptyQuery(t *testing.T) {
	e := newEngine(t, Deps{})

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := e.Run(context.Background(), Request{Text: text})
		assert.ErrorIs(t, err, ErrEmptyQuery)
	}
}

func TestEngine_ShapesByEngagement(t *testing.T) {
	tests := []struct {
		label string
		want  string
		level adaptive.Level
	}{
		{"happy", BaseResponse + adaptive.AdvancedMarker, adaptive.LevelAdvanced},
		{"neutral", BaseResponse, adaptive.LevelStandard},
		{"angry", BaseResponse + adaptive.SimplifiedMarker, adaptive.LevelSimplified},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			e := newEngine(t, Deps{Engagement: sensor(tt.label, nil)})

			res, err := e.Run(context.Background(), Request{Text: "What is osmosis?"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Response)
			assert.Equal(t, tt.level, res.Level)
			assert.Empty(t, res.Warnings)
		})
	}
}

func TestEngine_RecallsEarlierQuestionOnly(t *testing.T) {
	vectors := map[string][]float32{
		"What is osmosis?":        {1, 0, 0},
		"Explain osmosis please":  {0.99, 0.05, 0},
		"How do volcanoes erupt?": {0, 0, 1},
	}
	archive := &recordingArchive{}
	e := newEngine(t, Deps{Embedder: vectorEmbedder{vectors: vectors}, Archive: archive})
	ctx := context.Background()

	first, err := e.Run(ctx, Request{SessionID: "s1", Text: "What is osmosis?"})
	require.NoError(t, err)
	assert.Empty(t, first.SimilarQuestion)

	second, err := e.Run(ctx, Request{SessionID: "s1", Text: "Explain osmosis please"})
	require.NoError(t, err)
	assert.Equal(t, "What is osmosis?", second.SimilarQuestion)

	third, err := e.Run(ctx, Request{SessionID: "s1", Text: "How do volcanoes erupt?"})
	require.NoError(t, err)
	assert.Empty(t, third.SimilarQuestion)

	other, err := e.Run(ctx, Request{SessionID: "s2", Text: "Explain osmosis please"})
	require.NoError(t, err)
	assert.Empty(t, other.SimilarQuestion)

	assert.Len(t, archive.records, 4)
	assert.Equal(t, "What is osmosis?", archive.records[0].Utterance)
}

func TestEngine_DimensionMismatchIsFatal(t *testing.T) {
	vectors := map[string][]float32{
		"What is osmosis?": {1, 0, 0},
		"What is a cell?":  {1, 0},
	}
	registry := newRegistry(t)
	e := newEngine(t, Deps{Embedder: vectorEmbedder{vectors: vectors}, Memories: registry})
	ctx := context.Background()

	_, err := e.Run(ctx, Request{SessionID: "s1", Text: "What is osmosis?"})
	require.NoError(t, err)

	_, err = e.Run(ctx, Request{SessionID: "s1", Text: "What is a cell?"})
	assert.ErrorIs(t, err, memory.ErrDimensionMismatch)
	assert.Equal(t, 1, registry.Memory(ctx, "s1").Len())
}

func TestEngine_DegradedStepsStillAnswer(t *testing.T) {
	history := &recordingHistory{}
	e := newEngine(t, Deps{
		Analyzer: stubAnalyzer{
			result: analysis.Result{KeyPhrases: []string{"cell", "membrane", "osmosis"}, Triples: []analysis.Triple{}, TopicType: analysis.TopicTheory},
			err:    analysis.ErrAnalysisDegraded,
		},
		Graph:    builder.NewBuilder(failingRenderer{}),
		Embedder: vectorEmbedder{err: errors.New("quota exceeded")},
		Archive:  &recordingArchive{err: errors.New("unused")},
		History:  history,
	})

	res, err := e.Run(context.Background(), Request{SessionID: "s1", Text: "cell membrane osmosis"})
	require.NoError(t, err)

	assert.Equal(t, []string{"analysis", "render", "embedding"}, res.Warnings)
	assert.Equal(t, []string{"cell", "membrane", "osmosis"}, res.ConceptGraph.Nodes)
	assert.Equal(t, []builder.Edge{{From: "cell", To: "membrane"}, {From: "membrane", To: "osmosis"}}, res.ConceptGraph.Edges)
	assert.Empty(t, res.DiagramRef)
	assert.Equal(t, BaseResponse, res.Response)

	require.Len(t, history.items, 1)
	assert.Equal(t, res.ID, history.items[0].ID)
	assert.Equal(t, "theory", history.items[0].TopicType)
}

func TestEngine_EmptyAnalysisNormalized(t *testing.T) {
	e := newEngine(t, Deps{Analyzer: stubAnalyzer{}})

	res, err := e.Run(context.Background(), Request{Text: "how?"})
	require.NoError(t, err)
	assert.NotNil(t, res.KeyPhrases)
	assert.NotNil(t, res.Triples)
	assert.Equal(t, analysis.TopicProcess, res.TopicType)
	assert.Equal(t, session.DefaultSessionID, res.SessionID)
}

func TestEngine_Cancelled(t *testing.T) {
	e := newEngine(t, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, Request{Text: "What is osmosis?"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_ConcurrentRunsKeepEveryRecord(t *testing.T) {
	registry := newRegistry(t)
	e := newEngine(t, Deps{Memories: registry})
	ctx := context.Background()

	questions := []string{
		"What is osmosis?", "How do plants grow?", "What is a cell?", "How does the heart pump blood?",
		"What is gravity?", "How do magnets work?", "What is an atom?", "How do birds fly?",
	}

	var wg sync.WaitGroup
	for _, q := range questions {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, err := e.Run(ctx, Request{SessionID: "shared", Text: q})
			assert.NoError(t, err)
		}(q)
	}
	wg.Wait()

	assert.Equal(t, len(questions), registry.Memory(ctx, "shared").Len())
}

func TestLLMResponder(t *testing.T) {
	explainer := &stubExplainer{text: "Plants use light to make sugar."}
	e := newEngine(t, Deps{Responder: NewLLMResponder(explainer), Engagement: sensor("happy", nil)})

	res, err := e.Run(context.Background(), Request{Text: "How does photosynthesis work?"})
	require.NoError(t, err)
	assert.Equal(t, "Plants use light to make sugar."+adaptive.AdvancedMarker, res.Response)
	assert.Equal(t, "How does photosynthesis work?", explainer.got.Question)
	assert.Equal(t, analysis.TopicProcess, explainer.got.TopicType)
}

func TestLLMResponder_FallsBack(t *testing.T) {
	r := NewLLMResponder(&stubExplainer{err: errors.New("rate limited")})

	got, err := r.Respond(context.Background(), Question{Text: "What is osmosis?"})
	require.NoError(t, err)
	assert.Equal(t, BaseResponse, got)
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	_, err := NewEngine(Deps{})
	assert.Error(t, err)
}
