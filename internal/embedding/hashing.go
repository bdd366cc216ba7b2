package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const DefaultHashingDim = 300

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashingEmbedder is an offline embedder: lowercased words and adjacent word
// pairs are hashed into signed buckets and the result is L2-normalised.
// Texts sharing most of their vocabulary land close under cosine distance.
type HashingEmbedder struct {
	dim int
}

func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultHashingDim
	}
	return &HashingEmbedder{dim: dim}
}

func (e *HashingEmbedder) Name() string {
	return fmt.Sprintf("hashing-%d", e.dim)
}

func (e *HashingEmbedder) Dim() int { return e.dim }

func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, e.dim)
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	for i, w := range words {
		e.add(vec, w, 1)
		if i > 0 {
			e.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, e.dim)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (e *HashingEmbedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
