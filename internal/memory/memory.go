package memory

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricL2Squared Metric = "l2sq"
)

const (
	DefaultCosineThreshold = 0.2
	DefaultL2Threshold     = 0.1
)

type Record struct {
	Utterance string    `json:"utterance"`
	Embedding []float32 `json:"embedding"`
}

// Config selects the distance metric and acceptance threshold. A zero
// Dimension is fixed by the first stored record.
type Config struct {
	Metric    Metric
	Threshold float64
	Dimension int
}

// DefaultThreshold returns the acceptance threshold tuned for metric.
func DefaultThreshold(metric Metric) float64 {
	if metric == MetricL2Squared {
		return DefaultL2Threshold
	}
	return DefaultCosineThreshold
}

// Memory is an append-only exact nearest-neighbour store over utterance
// embeddings. Records are never removed or reordered.
type Memory struct {
	metric    Metric
	threshold float64

	mu      sync.RWMutex
	dim     int
	records []Record
}

func New(cfg Config) (*Memory, error) {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.Metric != MetricCosine && cfg.Metric != MetricL2Squared {
		return nil, fmt.Errorf("unsupported memory metric %q", cfg.Metric)
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold(cfg.Metric)
	}
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("invalid memory dimension %d", cfg.Dimension)
	}
	return &Memory{
		metric:    cfg.Metric,
		threshold: cfg.Threshold,
		dim:       cfg.Dimension,
	}, nil
}

func (m *Memory) Metric() Metric     { return m.metric }
func (m *Memory) Threshold() float64 { return m.threshold }

// Store appends a record. A malformed embedding is rejected and leaves the
// existing records untouched.
func (m *Memory) Store(utterance string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(utterance, embedding)
}

// RetrieveSimilar returns the utterance closest to query when its distance
// is strictly below the threshold. Ties go to the earliest record.
func (m *Memory) RetrieveSimilar(query []float32) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nearestLocked(query)
}

// Recall looks up the nearest stored utterance and then stores the current
// one, under a single lock so the lookup never sees its own record and no
// concurrent caller slips in between.
func (m *Memory) Recall(utterance string, embedding []float32) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	similar, ok, err := m.nearestLocked(embedding)
	if err != nil {
		return "", false, err
	}
	if err := m.appendLocked(utterance, embedding); err != nil {
		return "", false, err
	}
	return similar, ok, nil
}

// Restore appends previously archived records in order. It stops at the
// first malformed record; records before it are kept.
func (m *Memory) Restore(records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range records {
		if err := m.appendLocked(r.Utterance, r.Embedding); err != nil {
			return fmt.Errorf("restore record %d: %w", i, err)
		}
	}
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Records returns a deep copy in insertion order.
func (m *Memory) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, len(m.records))
	for i, r := range m.records {
		out[i] = Record{Utterance: r.Utterance, Embedding: append([]float32(nil), r.Embedding...)}
	}
	return out
}

func (m *Memory) appendLocked(utterance string, embedding []float32) error {
	if err := m.checkDim(embedding); err != nil {
		return err
	}
	if m.dim == 0 {
		m.dim = len(embedding)
	}
	m.records = append(m.records, Record{
		Utterance: utterance,
		Embedding: append([]float32(nil), embedding...),
	})
	return nil
}

func (m *Memory) nearestLocked(query []float32) (string, bool, error) {
	if len(m.records) == 0 {
		return "", false, nil
	}
	if err := m.checkDim(query); err != nil {
		return "", false, err
	}

	best := -1
	bestDist := math.Inf(1)
	for i, r := range m.records {
		d := m.distance(query, r.Embedding)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || !(bestDist < m.threshold) {
		return "", false, nil
	}
	return m.records[best].Utterance, true, nil
}

func (m *Memory) checkDim(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrDimensionMismatch)
	}
	if m.dim != 0 && len(embedding) != m.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), m.dim)
	}
	for _, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite component", ErrDimensionMismatch)
		}
	}
	return nil
}

func (m *Memory) distance(a, b []float32) float64 {
	if m.metric == MetricL2Squared {
		return squaredL2(a, b)
	}
	return cosineDistance(a, b)
}

// cosineDistance is 1 - cos(a, b). A zero vector is orthogonal to everything.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
