package avatar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/pixie/internal/activity"
	"github.com/normanking/pixie/internal/mood"
)

func TestController_Defaults(t *testing.T) {
	c := NewController()
	s := c.State()
	assert.Equal(t, mood.Helpful, s.Mood)
	assert.Equal(t, activity.General, s.Activity)
	assert.Equal(t, EyeOpen, s.EyeState)
}

func TestController_NotifiesOnlyOnChange(t *testing.T) {
	c := NewController()
	var got []State
	c.SetStateHandler(func(s State) { got = append(got, s) })

	c.SetMood(mood.Sleepy)
	c.SetMood(mood.Sleepy)
	c.SetActivity(activity.Coding)
	c.SetThinking(true)
	c.SetSpeaking(true)

	require.Len(t, got, 4)
	assert.Equal(t, EyeHalf, got[0].EyeState)
	assert.Equal(t, activity.Coding, got[1].Activity)
	assert.True(t, got[2].IsThinking)
	assert.True(t, got[3].IsSpeaking)
	assert.False(t, got[3].IsThinking, "speaking ends thinking")

	assert.Equal(t, got[3], c.State())
}

func TestController_ConcurrentReaders(t *testing.T) {
	c := NewController()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = c.State()
			}
		}()
	}
	for _, m := range mood.All {
		c.SetMood(m)
	}
	wg.Wait()
	assert.Equal(t, mood.All[len(mood.All)-1], c.State().Mood)
}

func TestController_Blink(t *testing.T) {
	c := NewController()
	c.blinkEvery = 5 * time.Millisecond
	c.blinkFor = time.Millisecond

	var mu sync.Mutex
	var closed int
	c.SetStateHandler(func(s State) {
		if s.EyeState == EyeClosed {
			mu.Lock()
			closed++
			mu.Unlock()
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)

	mu.Lock()
	assert.Positive(t, closed)
	mu.Unlock()
	assert.Equal(t, EyeOpen, c.State().EyeState)
}

func TestController_NoBlinkWhileSpeaking(t *testing.T) {
	c := NewController()
	c.SetSpeaking(true)
	c.blinkFor = time.Millisecond
	c.blink(context.Background())
	assert.Equal(t, EyeOpen, c.State().EyeState)
}
