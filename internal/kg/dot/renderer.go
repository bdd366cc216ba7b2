package dot

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/kg/builder"
	"github.com/tutor-agent/backend/pkg/logger"
)

// Output formats. FormatDOT writes the graph source without laying it out.
const (
	FormatPNG = "png"
	FormatSVG = "svg"
	FormatDOT = "dot"
)

// Renderer lays out each concept graph with Graphviz and writes one file per
// pipeline run into dir.
type Renderer struct {
	dir    string
	format string

	// gv is a single wasm instance; calls into it are serialized.
	mu sync.Mutex
	gv *graphviz.Graphviz
}

func NewRenderer(ctx context.Context, dir, format string) (*Renderer, error) {
	if format == "" {
		format = FormatPNG
	}
	switch format {
	case FormatPNG, FormatSVG, FormatDOT:
	default:
		return nil, fmt.Errorf("unknown diagram format %q", format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create diagram dir: %w", err)
	}

	r := &Renderer{dir: dir, format: format}
	if format != FormatDOT {
		gv, err := graphviz.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to start graphviz: %w", err)
		}
		r.gv = gv
	}

	logger.Info("Diagram renderer initialized", zap.String("dir", dir), zap.String("format", format))
	return r, nil
}

func (r *Renderer) Close() error {
	if r.gv == nil {
		return nil
	}
	return r.gv.Close()
}

func (r *Renderer) Render(ctx context.Context, id string, graph builder.ConceptGraph) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid diagram id %q", id)
	}

	var data []byte
	if r.format == FormatDOT {
		data = []byte(Encode(graph))
	} else {
		img, err := r.layout(ctx, graph)
		if err != nil {
			return "", err
		}
		data = img
	}

	path := filepath.Join(r.dir, id+"."+r.format)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write diagram: %w", err)
	}
	return path, nil
}

func (r *Renderer) layout(ctx context.Context, graph builder.ConceptGraph) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, err := r.gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("failed to create graph: %w", err)
	}
	defer g.Close()
	g.SetLabel("Concept Map")

	nodes := make(map[string]*cgraph.Node, len(graph.Nodes))
	for i, name := range graph.Nodes {
		n, err := g.CreateNodeByName("n" + strconv.Itoa(i))
		if err != nil {
			return nil, fmt.Errorf("failed to create node %q: %w", name, err)
		}
		n.SetLabel(name).
			SetShape(cgraph.EllipseShape).
			SetStyle(cgraph.FilledNodeStyle).
			SetFillColor("skyblue").
			SetFontSize(10)
		nodes[name] = n
	}
	for i, e := range graph.Edges {
		from, to := nodes[e.From], nodes[e.To]
		if from == nil || to == nil {
			return nil, fmt.Errorf("edge %q -> %q references an unknown concept", e.From, e.To)
		}
		if _, err := g.CreateEdgeByName("e"+strconv.Itoa(i), from, to); err != nil {
			return nil, fmt.Errorf("failed to create edge: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := r.gv.Render(ctx, g, graphviz.Format(r.format), &buf); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", r.format, err)
	}
	return buf.Bytes(), nil
}

// Encode writes the graph as DOT source.
func Encode(graph builder.ConceptGraph) string {
	var b strings.Builder
	b.WriteString("digraph ConceptMap {\n")
	b.WriteString("\tlabel=\"Concept Map\";\n")
	b.WriteString("\tnode [shape=ellipse, style=filled, fillcolor=skyblue, fontsize=10];\n")
	for i, n := range graph.Nodes {
		fmt.Fprintf(&b, "\tn%d [label=%s];\n", i, strconv.Quote(n))
	}
	index := make(map[string]int, len(graph.Nodes))
	for i, n := range graph.Nodes {
		index[n] = i
	}
	for _, e := range graph.Edges {
		fmt.Fprintf(&b, "\tn%d -> n%d;\n", index[e.From], index[e.To])
	}
	b.WriteString("}\n")
	return b.String()
}
