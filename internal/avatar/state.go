// Package avatar manages the pet's presentation state: mood, activity and
// what it is doing right now. Renderers read the latest State without
// locking.
package avatar

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/normanking/pixie/internal/activity"
	"github.com/normanking/pixie/internal/mood"
)

// EyeState represents eye animation state
type EyeState string

const (
	EyeOpen   EyeState = "open"
	EyeClosed EyeState = "closed"
	EyeHalf   EyeState = "half" // sleepy
	EyeWide   EyeState = "wide" // excited, curious
)

// State represents the pet's current look.
type State struct {
	Mood        mood.Mood         `json:"mood"`
	Activity    activity.Category `json:"activity"`
	EyeState    EyeState          `json:"eyeState"`
	IsSpeaking  bool              `json:"isSpeaking"`
	IsListening bool              `json:"isListening"`
	IsThinking  bool              `json:"isThinking"`
}

// restingEyes returns the open-eye look for a mood.
func restingEyes(m mood.Mood) EyeState {
	switch m {
	case mood.Sleepy:
		return EyeHalf
	case mood.Excited, mood.Curious:
		return EyeWide
	default:
		return EyeOpen
	}
}

// Controller manages presentation state transitions.
type Controller struct {
	mu    sync.Mutex
	state State
	view  atomic.Pointer[State]

	onStateChange func(State)
	blinkEvery    time.Duration
	blinkFor      time.Duration
}

// NewController creates a controller in the default mood.
func NewController() *Controller {
	c := &Controller{
		state: State{
			Mood:     mood.Helpful,
			Activity: activity.General,
			EyeState: EyeOpen,
		},
		onStateChange: func(State) {},
		blinkEvery:    4 * time.Second,
		blinkFor:      150 * time.Millisecond,
	}
	c.publish()
	return c
}

// SetStateHandler sets the callback for state changes. It must be set
// before the controller is shared.
func (c *Controller) SetStateHandler(handler func(State)) {
	if handler != nil {
		c.onStateChange = handler
	}
}

// State returns the latest published state. Safe from any goroutine.
func (c *Controller) State() State {
	return *c.view.Load()
}

// SetMood changes the mood and the resting eyes that go with it.
func (c *Controller) SetMood(m mood.Mood) {
	c.update(func(s *State) {
		s.Mood = m
		s.EyeState = restingEyes(m)
	})
}

// SetActivity records the current activity category.
func (c *Controller) SetActivity(cat activity.Category) {
	c.update(func(s *State) { s.Activity = cat })
}

// SetSpeaking toggles the speaking animation.
func (c *Controller) SetSpeaking(on bool) {
	c.update(func(s *State) {
		s.IsSpeaking = on
		if on {
			s.IsThinking = false
		}
	})
}

// SetListening toggles the listening animation.
func (c *Controller) SetListening(on bool) {
	c.update(func(s *State) { s.IsListening = on })
}

// SetThinking toggles the thinking animation.
func (c *Controller) SetThinking(on bool) {
	c.update(func(s *State) { s.IsThinking = on })
}

// Run blinks the eyes until ctx is done. Blinks are skipped while speaking.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.blinkEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.blink(ctx)
		}
	}
}

func (c *Controller) blink(ctx context.Context) {
	var blinked bool
	c.update(func(s *State) {
		if s.IsSpeaking {
			return
		}
		s.EyeState = EyeClosed
		blinked = true
	})
	if !blinked {
		return
	}

	t := time.NewTimer(c.blinkFor)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	c.update(func(s *State) { s.EyeState = restingEyes(s.Mood) })
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	before := c.state
	fn(&c.state)
	changed := before != c.state
	state := c.state
	if changed {
		c.publish()
	}
	c.mu.Unlock()

	if changed {
		c.onStateChange(state)
	}
}

// publish must be called with mu held.
func (c *Controller) publish() {
	s := c.state
	c.view.Store(&s)
}
