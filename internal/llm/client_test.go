package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutor-agent/backend/internal/analysis"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		APIKey:         "test",
		BaseURL:        srv.URL + "/v1",
		Model:          "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		MaxTokens:      256,
	})
}

func TestClient_Embed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],"model":"text-embedding-3-small","usage":{"prompt_tokens":4,"total_tokens":4}}`))
	})

	got, err := c.Embed(context.Background(), "What is osmosis?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, got)
	assert.Equal(t, "openai:text-embedding-3-small", c.Name())
}

func TestClient_Explain(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		assert.Contains(t, body.Messages[1].Content, "Question: How does photosynthesis work?")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"  Plants turn light into sugar.  "},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":6,"total_tokens":16}}`))
	})

	got, err := c.Explain(context.Background(), ExplainRequest{
		Question:  "How does photosynthesis work?",
		TopicType: analysis.TopicProcess,
	})
	require.NoError(t, err)
	assert.Equal(t, "Plants turn light into sugar.", got)
}

func TestClient_ExplainNoChoices(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[]}`))
	})

	_, err := c.Explain(context.Background(), ExplainRequest{Question: "What is a cell?"})
	assert.ErrorIs(t, err, errEmptyResponse)
	assert.Equal(t, 1, calls)
}

func TestBuildExplainPrompt(t *testing.T) {
	prompt := BuildExplainPrompt(ExplainRequest{
		Question:   "What is chlorophyll?",
		KeyPhrases: []string{"chlorophyll"},
		Triples:    []analysis.Triple{{Subject: "Chlorophyll", Predicate: "is", Object: "pigment"}},
		TopicType:  analysis.TopicTheory,
		Similar:    "What is a pigment?",
	})

	assert.Equal(t, "Question: What is chlorophyll?\n"+
		"Key concepts: chlorophyll\n"+
		"Stated relations:\n"+
		"- Chlorophyll is pigment\n"+
		"The learner previously asked: What is a pigment?\n"+
		"Explain the underlying idea with one concrete example.", prompt)
}
