package adaptive

const (
	SimplifiedMarker = "\n(Simplified with visual aid)"
	AdvancedMarker   = "\n(Advanced explanation with more depth)"

	LowEngagement  = 0.4
	HighEngagement = 0.7
)

type Level string

const (
	LevelSimplified Level = "simplified"
	LevelStandard   Level = "standard"
	LevelAdvanced   Level = "advanced"
)

// Classify buckets an engagement score. Both bounds belong to the standard band.
func Classify(engagement float64) Level {
	switch {
	case engagement < LowEngagement:
		return LevelSimplified
	case engagement > HighEngagement:
		return LevelAdvanced
	default:
		return LevelStandard
	}
}

// Shape appends the marker for the engagement level to the base response.
func Shape(base string, engagement float64) string {
	switch Classify(engagement) {
	case LevelSimplified:
		return base + SimplifiedMarker
	case LevelAdvanced:
		return base + AdvancedMarker
	default:
		return base
	}
}
