package engagement

import (
	"math"
	"strings"
)

const (
	ScorePositive = 0.8
	ScoreNeutral  = 0.5
	ScoreNegative = 0.2

	// DefaultScore is used whenever no usable emotion label is available.
	DefaultScore = ScoreNeutral
)

// Labels produced by the facial-expression classifier.
const (
	LabelAngry    = "angry"
	LabelDisgust  = "disgust"
	LabelFear     = "fear"
	LabelHappy    = "happy"
	LabelSad      = "sad"
	LabelSurprise = "surprise"
	LabelNeutral  = "neutral"
)

// Score maps an emotion label to an engagement score in [0,1]. An empty
// label means no signal. Any label other than happy, surprise or neutral
// counts as disengaged.
func Score(label string) float64 {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "":
		return DefaultScore
	case LabelHappy, LabelSurprise:
		return ScorePositive
	case LabelNeutral:
		return ScoreNeutral
	default:
		return ScoreNegative
	}
}

func Clamp(score float64) float64 {
	switch {
	case math.IsNaN(score):
		return DefaultScore
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
