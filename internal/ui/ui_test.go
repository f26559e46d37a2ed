package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/normanking/pixie/internal/avatar"
	"github.com/normanking/pixie/internal/mood"
)

func TestColour_AllMoods(t *testing.T) {
	for _, m := range mood.All {
		_, ok := Palette[m]
		assert.True(t, ok, "no colour for %s", m)
	}
	assert.Equal(t, Palette[mood.Helpful], Colour("grumpy"))
}

func TestTint_EasesTowardsMood(t *testing.T) {
	tint := NewTint(mood.Helpful)
	target := Colour(mood.Sleepy)
	start := tint.Current().Sub(target).Len()

	s := avatar.State{Mood: mood.Sleepy, EyeState: avatar.EyeHalf}
	tint.Step(s, 100*time.Millisecond)
	mid := tint.Current().Sub(target).Len()
	assert.Less(t, mid, start)

	for i := 0; i < 50; i++ {
		tint.Step(s, 100*time.Millisecond)
	}
	assert.True(t, tint.Current().ApproxEqualThreshold(target, 1e-3))
}

func TestTint_Clamped(t *testing.T) {
	tint := NewTint(mood.Excited)
	s := avatar.State{Mood: mood.Excited, IsListening: true}
	c := tint.Step(s, time.Second)
	for i := range c {
		assert.LessOrEqual(t, c[i], float32(1))
		assert.GreaterOrEqual(t, c[i], float32(0))
	}
}

func TestHeadless(t *testing.T) {
	state := avatar.State{Mood: mood.Curious}
	h := NewHeadless(func() avatar.State { return state })

	assert.NoError(t, h.Pump())
	assert.False(t, h.Closed())
	assert.True(t, h.Colour().ApproxEqualThreshold(Colour(mood.Curious), 1e-3))

	state.IsThinking = true
	_ = h.Pump()
	assert.NotEqual(t, Colour(mood.Curious), h.Colour())

	h.Close()
	assert.True(t, h.Closed())
}

func TestFace_Eyes(t *testing.T) {
	tests := []struct {
		eyes avatar.EyeState
		want float32
	}{
		{avatar.EyeClosed, 0},
		{avatar.EyeHalf, 0.45},
		{avatar.EyeOpen, 1},
		{avatar.EyeWide, 1.3},
	}
	for _, tt := range tests {
		var f Face
		f.Step(avatar.State{EyeState: tt.eyes}, 10*time.Millisecond)
		assert.Equal(t, tt.want, f.Eyes, string(tt.eyes))
	}
}

func TestFace_MouthMovesOnlyWhileSpeaking(t *testing.T) {
	var f Face
	f.Step(avatar.State{EyeState: avatar.EyeOpen}, 40*time.Millisecond)
	assert.Zero(t, f.Mouth)

	f.Step(avatar.State{EyeState: avatar.EyeOpen, IsSpeaking: true}, 40*time.Millisecond)
	assert.GreaterOrEqual(t, f.Mouth, float32(0.5))
	assert.LessOrEqual(t, f.Mouth, float32(1))
	assert.InDelta(t, 0, f.Bob, 0.011)
}
