package engagement

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		label string
		want  float64
	}{
		{"happy", 0.8},
		{"surprise", 0.8},
		{"neutral", 0.5},
		{"angry", 0.2},
		{"sad", 0.2},
		{"fear", 0.2},
		{"disgust", 0.2},
		{"bored", 0.2},
		{"  Happy ", 0.8},
		{"", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.label))
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.3))
	assert.Equal(t, 1.0, Clamp(1.7))
	assert.Equal(t, 0.42, Clamp(0.42))
	assert.Equal(t, DefaultScore, Clamp(math.NaN()))
}
