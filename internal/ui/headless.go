package ui

import (
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/pixie/internal/avatar"
)

// Headless is a Surface with no window. It still eases the tint so the
// presentation path runs, and closes only when Close is called.
type Headless struct {
	state  func() avatar.State
	tint   *Tint
	last   time.Time
	colour atomic.Value // mgl32.Vec3
	closed atomic.Bool
}

// NewHeadless creates a windowless surface reading state.
func NewHeadless(state func() avatar.State) *Headless {
	s := state()
	h := &Headless{state: state, tint: NewTint(s.Mood), last: time.Now()}
	h.colour.Store(h.tint.Current())
	return h
}

// Pump advances the tint one frame.
func (h *Headless) Pump() error {
	now := time.Now()
	h.colour.Store(h.tint.Step(h.state(), now.Sub(h.last)))
	h.last = now
	return nil
}

// Closed reports whether Close was called.
func (h *Headless) Closed() bool { return h.closed.Load() }

// Close makes the event loop stop at its next frame.
func (h *Headless) Close() { h.closed.Store(true) }

// Colour returns the colour of the last frame.
func (h *Headless) Colour() mgl32.Vec3 { return h.colour.Load().(mgl32.Vec3) }
