// Package ratelimit bounds outbound AI call volume with an exact sliding window.
//
// This is admission control: a denied call is not queued. Callers decide
// whether to skip, defer or show a "please wait" state.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults match the agent's performance profile: 10 calls per minute.
const (
	DefaultMaxCalls = 10
	DefaultWindow   = time.Minute
)

// Limiter admits at most maxCalls calls within any trailing window.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time // ascending
	now      func() time.Time

	admitted int64
	rejected int64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter. Non-positive arguments fall back to the defaults.
func New(maxCalls int, window time.Duration, opts ...Option) *Limiter {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		maxCalls: maxCalls,
		window:   window,
		calls:    make([]time.Time, 0, maxCalls),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether a call may proceed now. An admitted call is recorded.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.purge(now)
	if len(l.calls) >= l.maxCalls {
		l.rejected++
		return false
	}
	l.calls = append(l.calls, now)
	l.admitted++
	return true
}

// TimeUntilNext returns how long until Allow would admit a call. Zero means
// a call would be admitted now.
func (l *Limiter) TimeUntilNext() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.purge(now)
	if len(l.calls) < l.maxCalls {
		return 0
	}
	wait := l.calls[0].Add(l.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Len returns the number of calls currently inside the window.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purge(l.now())
	return len(l.calls)
}

// Stats returns lifetime admitted and rejected counts.
func (l *Limiter) Stats() (admitted, rejected int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admitted, l.rejected
}

// Resize changes the limits in place. Calls still inside the new window
// are kept, newest first, up to the new maximum. Dropping the oldest does
// not change when the next call is admitted.
func (l *Limiter) Resize(maxCalls int, window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if maxCalls > 0 {
		l.maxCalls = maxCalls
	}
	if window > 0 {
		l.window = window
	}
	l.purge(l.now())
	if n := len(l.calls); n > l.maxCalls {
		l.calls = append(l.calls[:0], l.calls[n-l.maxCalls:]...)
	}
}

// purge drops calls that are a full window or more in the past.
func (l *Limiter) purge(now time.Time) {
	i := 0
	for i < len(l.calls) && now.Sub(l.calls[i]) >= l.window {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
