package pipeline

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/metrics"
	"github.com/tutor-agent/backend/pkg/logger"
)

// stepWarnings collects degraded steps from the concurrent stages of a run.
type stepWarnings struct {
	mu    sync.Mutex
	steps []string
}

func newStepWarnings() *stepWarnings {
	return &stepWarnings{}
}

func (w *stepWarnings) add(step string, err error) {
	metrics.DegradedSteps.WithLabelValues(step).Inc()
	logger.Warn("Pipeline step degraded", zap.String("step", step), zap.Error(err))

	w.mu.Lock()
	w.steps = append(w.steps, step)
	w.mu.Unlock()
}

// list returns the degraded steps in a fixed order.
func (w *stepWarnings) list() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	order := []string{"analysis", "render", "embedding", "archive", "engagement", "respond"}
	seen := make(map[string]bool, len(w.steps))
	for _, s := range w.steps {
		seen[s] = true
	}

	var out []string
	for _, s := range order {
		if seen[s] {
			out = append(out, s)
		}
	}
	return out
}
