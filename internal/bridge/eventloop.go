// Package bridge connects the agent core to things that block: the native
// UI event pump, speech output and speech input.
package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/pixie/internal/metrics"
	"github.com/normanking/pixie/internal/ratelimit"
	"github.com/normanking/pixie/internal/scheduler"
)

var (
	// ErrUIClosed is returned by EventLoop.Run once the user closed the pet
	// window. It ends the whole run.
	ErrUIClosed = errors.New("ui closed")
	// ErrSurfaceGone is returned by a Surface whose native window no longer
	// exists.
	ErrSurfaceGone = errors.New("ui surface gone")
)

// Surface is a native UI that can be advanced one frame without blocking.
type Surface interface {
	// Pump processes pending UI events and presents one frame.
	Pump() error
	// Closed reports whether the user closed the window.
	Closed() bool
}

// EventLoop pumps a Surface at a fixed frame rate.
type EventLoop struct {
	surface  Surface
	interval time.Duration
	minSleep time.Duration
	monitor  *metrics.Monitor
	errLog   *ratelimit.Limiter
	logger   zerolog.Logger

	frames uint64
}

// NewEventLoop creates an event loop. interval is the target frame period
// and minSleep the least time yielded between frames.
func NewEventLoop(surface Surface, interval, minSleep time.Duration, logger zerolog.Logger) *EventLoop {
	if interval <= 0 {
		interval = time.Second / 30
	}
	if minSleep <= 0 {
		minSleep = time.Millisecond
	}
	return &EventLoop{
		surface:  surface,
		interval: interval,
		minSleep: minSleep,
		monitor:  metrics.NewMonitor(logger),
		errLog:   ratelimit.New(1, time.Second),
		logger:   logger.With().Str("component", "eventloop").Logger(),
	}
}

// FrameSleep returns how long to yield after a frame that took elapsed.
func FrameSleep(elapsed, interval, minSleep time.Duration) time.Duration {
	return max(minSleep, interval-elapsed)
}

// Run pumps the surface until ctx is cancelled (returning ctx.Err()) or the
// window closes (returning ErrUIClosed). Other pump errors are logged and
// the loop keeps going.
func (l *EventLoop) Run(ctx context.Context) error {
	l.logger.Info().Dur("interval", l.interval).Msg("UI event loop started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.surface.Closed() {
			return l.closed()
		}

		start := time.Now()
		err := l.surface.Pump()
		elapsed := time.Since(start)
		l.frames++
		l.monitor.Frame(elapsed)

		if err != nil {
			if errors.Is(err, ErrSurfaceGone) {
				return l.closed()
			}
			metrics.PumpErrors.Inc()
			if l.errLog.Allow() {
				l.logger.Warn().Err(err).Msg("UI pump failed")
			}
		}

		if !scheduler.Sleep(ctx, FrameSleep(elapsed, l.interval, l.minSleep)) {
			return ctx.Err()
		}
	}
}

// Frames returns the number of frames pumped so far. Only valid after Run
// returned.
func (l *EventLoop) Frames() uint64 { return l.frames }

func (l *EventLoop) closed() error {
	l.logger.Info().Uint64("frames", l.frames).Msg("UI closed")
	return ErrUIClosed
}
