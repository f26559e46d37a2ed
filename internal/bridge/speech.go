package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/pixie/internal/metrics"
	"github.com/normanking/pixie/internal/tts"
)

// Voice plays the pet's speech on worker goroutines. A new utterance stops
// the one in flight before it starts, so at most one plays at a time.
type Voice struct {
	engine    tts.Engine
	available bool
	onState   func(speaking bool)
	logger    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	last   chan struct{} // closed when the newest utterance finished
	gen    uint64
	closed bool
	wg     sync.WaitGroup
}

// VoiceOption configures a Voice.
type VoiceOption func(*Voice)

// WithSpeakingHook is called with true when an utterance starts playing and
// false when the newest one ends. It runs on the playback goroutine.
func WithSpeakingHook(fn func(speaking bool)) VoiceOption {
	return func(v *Voice) { v.onState = fn }
}

// NewVoice wraps engine. Availability is probed once here and fixed for the
// life of the Voice.
func NewVoice(engine tts.Engine, logger zerolog.Logger, opts ...VoiceOption) *Voice {
	v := &Voice{
		engine:  engine,
		onState: func(bool) {},
		logger:  logger.With().Str("component", "voice").Logger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.available = engine != nil && engine.Available()
	if v.available {
		v.logger.Info().Str("engine", engine.Name()).Msg("Speech output ready")
	} else {
		v.logger.Warn().Msg("Speech output unavailable, replies will be text only")
	}
	return v
}

// IsAvailable reports whether speech output works.
func (v *Voice) IsAvailable() bool { return v.available }

// Speak starts playing text and returns immediately. It returns false when
// nothing will be played.
func (v *Voice) Speak(text string) bool {
	if !v.available {
		return false
	}
	text = tts.CleanForSpeech(text)
	if text == "" {
		return false
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false
	}
	if v.cancel != nil {
		v.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	prev, done := v.last, make(chan struct{})
	v.cancel, v.last = cancel, done
	v.gen++
	gen := v.gen
	v.wg.Add(1)
	v.mu.Unlock()

	metrics.Utterances.Inc()
	go v.play(ctx, cancel, text, gen, prev, done)
	return true
}

func (v *Voice) play(ctx context.Context, cancel context.CancelFunc, text string, gen uint64, prev, done chan struct{}) {
	defer v.wg.Done()
	defer close(done)
	defer cancel()

	if prev != nil {
		<-prev
	}
	if ctx.Err() == nil {
		v.onState(true)
		err := v.engine.Speak(ctx, text)
		if err != nil && !errors.Is(err, context.Canceled) {
			v.logger.Warn().Err(err).Str("engine", v.engine.Name()).Msg("Playback failed")
		}
	}

	v.mu.Lock()
	newest := v.gen == gen
	if newest {
		v.cancel = nil
	}
	v.mu.Unlock()
	if newest {
		v.onState(false)
	}
}

// Stop interrupts the utterance in flight, if any.
func (v *Voice) Stop() {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.mu.Unlock()
}

// Close stops playback and waits for every playback goroutine to exit.
// Speak returns false afterwards.
func (v *Voice) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.Stop()
	v.wg.Wait()
}
