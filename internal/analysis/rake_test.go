package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRake_SplitsOnStopwordsAndPunctuation(t *testing.T) {
	r := NewRake()
	got := r.Rank("How does photosynthesis work?", nil, 5)
	assert.Equal(t, []string{"photosynthesis work"}, got)
}

func TestRake_RanksByDegreeOverFrequency(t *testing.T) {
	r := NewRake()
	// cell: degree 4 / freq 2 = 2; membrane, transport: 3; osmosis: 1.
	// Phrase scores are 8, 1 and 2 in order of appearance.
	text := "Cell membrane transport and osmosis. The cell."
	got := r.Rank(text, nil, 5)
	assert.Equal(t, []string{"cell membrane transport", "cell", "osmosis"}, got)
}

func TestRake_LimitsAndKeepsTieOrder(t *testing.T) {
	r := NewRake()
	got := r.Rank("alpha, beta, gamma, delta, epsilon, zeta, eta", nil, 5)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta", "epsilon"}, got)
}

func TestRake_KeepsRepeatedPhrases(t *testing.T) {
	r := NewRake()
	got := r.Rank("energy. energy.", nil, 5)
	assert.Equal(t, []string{"energy", "energy"}, got)
}

func TestRake_Deterministic(t *testing.T) {
	r := NewRake()
	text := "Explain the Krebs cycle and oxidative phosphorylation in mitochondria"
	first := r.Rank(text, nil, 5)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Rank(text, nil, 5))
	}
	assert.LessOrEqual(t, len(first), 5)
}

func TestRake_OnlyStopwords(t *testing.T) {
	assert.Empty(t, NewRake().Rank("what is it?", nil, 5))
}
