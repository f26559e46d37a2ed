package vision

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/pixie/internal/ratelimit"
	"github.com/normanking/pixie/internal/scheduler"
)

// Monitor polls a WindowProbe and reports foreground window changes.
type Monitor struct {
	probe  WindowProbe
	logger zerolog.Logger
	errLog *ratelimit.Limiter

	stillAfter time.Duration
	onStill    func(WindowInfo, time.Duration)
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithStillness calls fn once for every full d the foreground window stays
// the same.
func WithStillness(d time.Duration, fn func(info WindowInfo, still time.Duration)) MonitorOption {
	return func(m *Monitor) {
		m.stillAfter = d
		m.onStill = fn
	}
}

// NewMonitor creates a monitor over probe.
func NewMonitor(probe WindowProbe, logger zerolog.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		probe:  probe,
		logger: logger.With().Str("component", "vision").Logger(),
		errLog: ratelimit.New(1, time.Minute),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Available reports whether the probe works on this machine.
func (m *Monitor) Available() bool {
	return m.probe != nil && m.probe.Available()
}

// Start polls every interval until ctx is done, calling callback each time
// the window title changes. The first successful probe always counts as a
// change. Probe failures are logged and skipped.
func (m *Monitor) Start(ctx context.Context, callback func(WindowInfo), interval time.Duration) error {
	if !m.Available() {
		return ErrProbeNotAvailable
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var (
		last       WindowInfo
		seen       bool
		stillSince time.Time
		reported   int
	)
	for {
		info, err := m.probe.Active(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			if m.errLog.Allow() {
				m.logger.Debug().Err(err).Msg("Active window probe failed")
			}
		case !seen || info.Title != last.Title:
			seen = true
			last = info
			stillSince = time.Now()
			reported = 0
			callback(info)
		case m.onStill != nil && m.stillAfter > 0:
			still := time.Since(stillSince)
			if n := int(still / m.stillAfter); n > reported {
				reported = n
				m.onStill(last, still)
			}
		}

		if !scheduler.Sleep(ctx, interval) {
			return ctx.Err()
		}
	}
}
