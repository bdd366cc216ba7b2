package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/pkg/logger"
)

var ErrSensorUnavailable = errors.New("affect sensor unavailable")

const DefaultTimeout = 2 * time.Second

// Sensor returns the learner's current emotion label. An empty label with a
// nil error means no face was detected.
type Sensor interface {
	Sense(ctx context.Context, sessionID string) (string, error)
}

type SensorFunc func(ctx context.Context, sessionID string) (string, error)

func (f SensorFunc) Sense(ctx context.Context, sessionID string) (string, error) {
	return f(ctx, sessionID)
}

type Reading struct {
	Label string
	Score float64
	Err   error
}

// Monitor bounds every sensor call by a timeout and turns any failure into
// the default score. It never returns an error to its caller.
type Monitor struct {
	sensor  Sensor
	timeout time.Duration
}

func NewMonitor(sensor Sensor, timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{sensor: sensor, timeout: timeout}
}

func (m *Monitor) Score(ctx context.Context, sessionID string) float64 {
	return m.Read(ctx, sessionID).Score
}

// Read is Score with the label and the reason for falling back. Err wraps
// ErrSensorUnavailable whenever the default score was substituted for a
// failure.
func (m *Monitor) Read(ctx context.Context, sessionID string) Reading {
	if m == nil || m.sensor == nil {
		return Reading{Score: DefaultScore, Err: fmt.Errorf("%w: no sensor configured", ErrSensorUnavailable)}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	type result struct {
		label string
		err   error
	}
	// Buffered so a sensor that ignores ctx can still finish and exit.
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("sensor panic: %v", r)}
			}
		}()
		label, err := m.sensor.Sense(ctx, sessionID)
		ch <- result{label: label, err: err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = result{err: ctx.Err()}
	}

	if res.err != nil {
		err := fmt.Errorf("%w: %v", ErrSensorUnavailable, res.err)
		logger.Warn("Engagement sensing failed, using default score",
			zap.String("session_id", sessionID),
			zap.Duration("timeout", m.timeout),
			zap.Error(err),
		)
		return Reading{Score: DefaultScore, Err: err}
	}

	return Reading{Label: res.label, Score: Clamp(Score(res.label))}
}
