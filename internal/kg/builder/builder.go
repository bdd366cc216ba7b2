package builder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/pkg/logger"
)

var ErrRenderFailed = errors.New("concept graph render failed")

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ConceptGraph is a path over ranked key phrases. Node identity is the phrase
// text; nodes keep first-occurrence order and edges follow extraction rank.
type ConceptGraph struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// Renderer turns a graph into a visual artifact and returns where it went.
type Renderer interface {
	Render(ctx context.Context, id string, graph ConceptGraph) (string, error)
}

type Builder struct {
	renderer Renderer
}

func NewBuilder(renderer Renderer) *Builder {
	return &Builder{renderer: renderer}
}

// Build links each phrase to the one ranked after it. Repeated phrases
// collapse into one node and repeated links into one edge.
func Build(keyPhrases []string) ConceptGraph {
	graph := ConceptGraph{Nodes: []string{}, Edges: []Edge{}}
	seenNode := make(map[string]bool)
	seenEdge := make(map[Edge]bool)

	for i, phrase := range keyPhrases {
		if !seenNode[phrase] {
			seenNode[phrase] = true
			graph.Nodes = append(graph.Nodes, phrase)
		}
		if i == 0 {
			continue
		}
		e := Edge{From: keyPhrases[i-1], To: phrase}
		if !seenEdge[e] {
			seenEdge[e] = true
			graph.Edges = append(graph.Edges, e)
		}
	}
	return graph
}

// BuildAndRender always returns the computed graph. A render failure is
// returned wrapped in ErrRenderFailed and is not retried.
func (b *Builder) BuildAndRender(ctx context.Context, id string, keyPhrases []string) (ConceptGraph, string, error) {
	graph := Build(keyPhrases)
	if b.renderer == nil || len(graph.Nodes) == 0 {
		return graph, "", nil
	}

	artifact, err := b.renderer.Render(ctx, id, graph)
	if err != nil {
		return graph, "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	logger.Debug("Concept graph rendered",
		zap.String("id", id),
		zap.Int("nodes", len(graph.Nodes)),
		zap.String("artifact", artifact),
	)
	return graph, artifact, nil
}
