package prose

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzer_ParsesSentences(t *testing.T) {
	a := NewAnalyzer()
	parse, err := a.Parse(context.Background(), "Plants absorb light. Chlorophyll is a pigment.")
	require.NoError(t, err)
	require.Len(t, parse.Sentences, 2)

	for _, s := range parse.Sentences {
		roots := 0
		for _, tok := range s.Tokens {
			if tok.Dep == "ROOT" {
				roots++
			}
		}
		assert.Equal(t, 1, roots)
	}
}

func TestAnalyzer_RejectsInvalidUTF8(t *testing.T) {
	_, err := NewAnalyzer().Parse(context.Background(), "\xff\xfe")
	assert.ErrorIs(t, err, ErrUnsupportedText)
}

func TestAnalyzer_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAnalyzer().Parse(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}
