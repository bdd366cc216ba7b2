package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemory(t *testing.T, cfg Config) *Memory {
	t.Helper()
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

func TestNew_Defaults(t *testing.T) {
	m := newMemory(t, Config{})
	assert.Equal(t, MetricCosine, m.Metric())
	assert.Equal(t, DefaultCosineThreshold, m.Threshold())

	l2 := newMemory(t, Config{Metric: MetricL2Squared})
	assert.Equal(t, DefaultL2Threshold, l2.Threshold())

	_, err := New(Config{Metric: "manhattan"})
	assert.Error(t, err)
	_, err = New(Config{Dimension: -1})
	assert.Error(t, err)
}

func TestRetrieveSimilar_EmptyMemory(t *testing.T) {
	m := newMemory(t, Config{})

	got, ok, err := m.RetrieveSimilar([]float32{1, 0, 0})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestRetrieveSimilar_SingleRecord(t *testing.T) {
	m := newMemory(t, Config{})
	require.NoError(t, m.Store("A", []float32{1, 0}))

	got, ok, err := m.RetrieveSimilar([]float32{1, 0})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A", got)

	_, ok, err = m.RetrieveSimilar([]float32{0, 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRetrieveSimilar_ComparesAllRecords(t *testing.T) {
	m := newMemory(t, Config{})
	require.NoError(t, m.Store("A", []float32{1, 0, 0}))
	require.NoError(t, m.Store("B", []float32{0, 1, 0}))
	require.NoError(t, m.Store("C", []float32{0, 0, 1}))

	tests := []struct {
		name   string
		query  []float32
		want   string
		wantOK bool
	}{
		{"exact middle", []float32{0, 1, 0}, "B", true},
		{"exact last", []float32{0, 0, 1}, "C", true},
		{"scaled copy", []float32{0, 0, 5}, "C", true},
		{"near first", []float32{1, 0.1, 0}, "A", true},
		{"far from all", []float32{1, 1, 1}, "", false},
		{"opposite", []float32{-1, 0, 0}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := m.RetrieveSimilar(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetrieveSimilar_ThresholdIsStrict(t *testing.T) {
	// cos([1,0],[3,4]) = 0.6, so the distance is exactly 0.4.
	m := newMemory(t, Config{Threshold: 0.4})
	require.NoError(t, m.Store("A", []float32{3, 4}))

	_, ok, err := m.RetrieveSimilar([]float32{1, 0})
	require.NoError(t, err)
	assert.False(t, ok)

	m = newMemory(t, Config{Threshold: 0.41})
	require.NoError(t, m.Store("A", []float32{3, 4}))
	got, ok, err := m.RetrieveSimilar([]float32{1, 0})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A", got)
}

func TestRetrieveSimilar_TieGoesToEarliest(t *testing.T) {
	m := newMemory(t, Config{})
	require.NoError(t, m.Store("first", []float32{1, 0}))
	require.NoError(t, m.Store("second", []float32{2, 0}))
	require.NoError(t, m.Store("third", []float32{1, 0}))

	got, ok, err := m.RetrieveSimilar([]float32{1, 0})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first", got)
}

func TestRetrieveSimilar_Idempotent(t *testing.T) {
	m := newMemory(t, Config{})
	require.NoError(t, m.Store("A", []float32{1, 0}))
	require.NoError(t, m.Store("B", []float32{0.9, 0.1}))

	first, ok, err := m.RetrieveSimilar([]float32{0.95, 0.05})
	require.NoError(t, err)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		got, ok, err := m.RetrieveSimilar([]float32{0.95, 0.05})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, first, got)
	}
	assert.Equal(t, 2, m.Len())
}

func TestRetrieveSimilar_SquaredL2(t *testing.T) {
	m := newMemory(t, Config{Metric: MetricL2Squared})
	require.NoError(t, m.Store("A", []float32{0, 0}))
	require.NoError(t, m.Store("B", []float32{1, 1}))

	got, ok, err := m.RetrieveSimilar([]float32{0.9, 0.9})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "B", got)

	// 0.5^2 + 0 = 0.25, above 0.1.
	_, ok, err = m.RetrieveSimilar([]float32{0.5, 0})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_DimensionContract(t *testing.T) {
	m := newMemory(t, Config{})
	require.NoError(t, m.Store("A", []float32{1, 0, 0}))

	err := m.Store("B", []float32{1, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	err = m.Store("C", nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, m.Len())

	_, _, err = m.RetrieveSimilar([]float32{1, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestStore_FixedDimension(t *testing.T) {
	m := newMemory(t, Config{Dimension: 2})
	assert.ErrorIs(t, m.Store("A", []float32{1, 0, 0}), ErrDimensionMismatch)
	assert.NoError(t, m.Store("A", []float32{1, 0}))
	assert.Equal(t, 1, m.Len())
}

func TestRecall_DoesNotMatchItself(t *testing.T) {
	m := newMemory(t, Config{})

	_, ok, err := m.Recall("A", []float32{1, 0})
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := m.Recall("A again", []float32{1, 0})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A", got)

	assert.Equal(t, []string{"A", "A again"}, utterances(m.Records()))
}

func TestRecall_RejectsBadEmbeddingWithoutStoring(t *testing.T) {
	m := newMemory(t, Config{})
	_, _, err := m.Recall("A", []float32{1, 0})
	require.NoError(t, err)

	_, _, err = m.Recall("B", []float32{1, 0, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, m.Len())
}

func TestRecords_ReturnsCopy(t *testing.T) {
	m := newMemory(t, Config{})
	require.NoError(t, m.Store("A", []float32{1, 0}))

	recs := m.Records()
	recs[0].Embedding[0] = 42
	recs[0].Utterance = "mutated"

	again := m.Records()
	assert.Equal(t, "A", again[0].Utterance)
	assert.Equal(t, float32(1), again[0].Embedding[0])
}

func TestRestore(t *testing.T) {
	m := newMemory(t, Config{})
	err := m.Restore([]Record{
		{Utterance: "A", Embedding: []float32{1, 0}},
		{Utterance: "B", Embedding: []float32{0, 1}},
		{Utterance: "bad", Embedding: []float32{0, 1, 0}},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, []string{"A", "B"}, utterances(m.Records()))
}

func TestMemory_ConcurrentRecall(t *testing.T) {
	m := newMemory(t, Config{})
	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, _, err := m.Recall(fmt.Sprintf("q-%d-%d", w, i), []float32{float32(w + 1), float32(i + 1)})
				assert.NoError(t, err)
				_, _, err = m.RetrieveSimilar([]float32{1, 1})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, m.Len())

	// Each worker's own records stay in the order it stored them.
	next := make(map[int]int)
	for _, r := range m.Records() {
		var w, i int
		_, err := fmt.Sscanf(r.Utterance, "q-%d-%d", &w, &i)
		require.NoError(t, err)
		assert.Equal(t, next[w], i)
		next[w] = i + 1
	}
}

func utterances(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Utterance
	}
	return out
}
