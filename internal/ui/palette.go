// Package ui draws the pet window. The window is a small borderless
// floating square showing a round face in the colour of the pet's mood.
package ui

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/pixie/internal/avatar"
	"github.com/normanking/pixie/internal/mood"
)

// Palette maps each mood to a colour.
var Palette = map[mood.Mood]mgl32.Vec3{
	mood.Helpful:     {0.36, 0.62, 0.95},
	mood.Playful:     {0.98, 0.55, 0.78},
	mood.Curious:     {0.55, 0.85, 0.55},
	mood.Encouraging: {1.00, 0.78, 0.30},
	mood.Sleepy:      {0.45, 0.42, 0.70},
	mood.Excited:     {1.00, 0.45, 0.25},
}

// Colour returns the palette colour for m.
func Colour(m mood.Mood) mgl32.Vec3 {
	if c, ok := Palette[m]; ok {
		return c
	}
	return Palette[mood.Helpful]
}

// Tint eases the window colour towards the current mood.
type Tint struct {
	current mgl32.Vec3
	phase   float64
	// Ease is the fraction of the remaining distance covered per second.
	Ease float32
}

// NewTint starts at the colour of m.
func NewTint(m mood.Mood) *Tint {
	return &Tint{current: Colour(m), Ease: 3}
}

// Step advances the tint by dt for state s and returns the colour to draw.
func (t *Tint) Step(s avatar.State, dt time.Duration) mgl32.Vec3 {
	target := Colour(s.Mood)
	k := min(1, t.Ease*float32(dt.Seconds()))
	t.current = lerp(t.current, target, k)

	out := t.current
	switch {
	case s.IsSpeaking:
		t.phase += dt.Seconds() * 2 * math.Pi * 3
		out = out.Mul(1 + 0.15*float32(math.Sin(t.phase)))
	case s.IsThinking:
		out = lerp(out, mgl32.Vec3{1, 1, 1}, 0.25)
	case s.IsListening:
		out = out.Mul(1.1)
	}
	if s.EyeState == avatar.EyeClosed {
		out = out.Mul(0.8)
	}
	return clamp(out)
}

// Current returns the eased colour without effects.
func (t *Tint) Current() mgl32.Vec3 { return t.current }

func lerp(a, b mgl32.Vec3, k float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(k))
}

func clamp(v mgl32.Vec3) mgl32.Vec3 {
	for i := range v {
		v[i] = mgl32.Clamp(v[i], 0, 1)
	}
	return v
}
