package metrics

import (
	"time"

	"github.com/rs/zerolog"
)

// Thresholds above which operations are logged as slow.
const (
	SlowFrameThreshold = 100 * time.Millisecond
	SlowAIThreshold    = 10 * time.Second
	SlowOpThreshold    = time.Second
)

// Monitor logs operations that take longer than expected and records them.
type Monitor struct {
	logger zerolog.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(logger zerolog.Logger) *Monitor {
	return &Monitor{logger: logger.With().Str("component", "perf").Logger()}
}

// Frame records one UI frame and reports whether it was slow.
func (m *Monitor) Frame(d time.Duration) bool {
	FrameDuration.Observe(d.Seconds())
	if d <= SlowFrameThreshold {
		return false
	}
	SlowFrames.Inc()
	m.logger.Warn().Dur("took", d).Msg("Slow UI frame")
	return true
}

// AI records one collaborator call. result is "ok", "empty" or "error".
func (m *Monitor) AI(op, result string, d time.Duration) {
	AIRequests.WithLabelValues(op, result).Inc()
	AILatency.WithLabelValues(op).Observe(d.Seconds())
	if d > SlowAIThreshold {
		m.logger.Warn().Str("op", op).Dur("took", d).Msg("Slow AI response")
	}
}

// Op logs any other operation that ran past SlowOpThreshold.
func (m *Monitor) Op(name string, start time.Time) {
	if d := time.Since(start); d > SlowOpThreshold {
		m.logger.Warn().Str("op", name).Dur("took", d).Msg("Slow operation")
	}
}
