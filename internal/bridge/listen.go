package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/pixie/internal/audio"
	"github.com/normanking/pixie/internal/metrics"
	"github.com/normanking/pixie/internal/scheduler"
	"github.com/normanking/pixie/internal/stt"
)

var (
	// ErrMicrophoneBusy is returned when another capture owns the microphone.
	ErrMicrophoneBusy = errors.New("microphone busy")
	// ErrSpeechInputUnavailable is returned when no recorder or transcriber
	// was found at startup.
	ErrSpeechInputUnavailable = errors.New("speech input unavailable")
)

// Capturer records one phrase from the microphone.
type Capturer interface {
	Available() bool
	Listen(ctx context.Context, timeout, phraseLimit time.Duration) (audio.Phrase, error)
}

// EarsConfig bounds the two capture modes.
type EarsConfig struct {
	Name          string        // pet name, counts as addressing it
	SegmentWait   time.Duration // continuous: wait for speech per segment
	Segment       time.Duration // continuous: longest segment
	PhraseLimit   time.Duration // ListenOnce: longest phrase
	DecodeTimeout time.Duration
}

// DefaultEarsConfig returns the capture bounds used by the agent.
func DefaultEarsConfig() EarsConfig {
	return EarsConfig{
		Name:          "Pixie",
		SegmentWait:   time.Second,
		Segment:       5 * time.Second,
		PhraseLimit:   10 * time.Second,
		DecodeTimeout: 15 * time.Second,
	}
}

type earsMode int

const (
	modeIdle earsMode = iota
	modeOnce
	modeContinuous
)

// Ears turns microphone audio into text. Continuous listening runs one
// capture goroutine and a short-lived decode goroutine per segment, so
// capture never waits on the network.
type Ears struct {
	capturer    Capturer
	transcriber stt.Transcriber
	filter      *stt.Filter
	sink        func(stt.Utterance)
	cfg         EarsConfig
	available   bool
	logger      zerolog.Logger

	base     context.Context
	shutdown context.CancelFunc
	decode   sync.WaitGroup

	mu       sync.Mutex
	mode     earsMode
	epoch    uint64
	stop     context.CancelFunc
	captured chan struct{} // closed when the capture goroutine exits
}

// NewEars creates speech input. sink receives addressed utterances heard
// while continuous listening is on; it is called from decode goroutines and
// must not block.
func NewEars(capturer Capturer, transcriber stt.Transcriber, cfg EarsConfig, sink func(stt.Utterance), logger zerolog.Logger) *Ears {
	d := DefaultEarsConfig()
	if cfg.SegmentWait <= 0 {
		cfg.SegmentWait = d.SegmentWait
	}
	if cfg.Segment <= 0 {
		cfg.Segment = d.Segment
	}
	if cfg.PhraseLimit <= 0 {
		cfg.PhraseLimit = d.PhraseLimit
	}
	if cfg.DecodeTimeout <= 0 {
		cfg.DecodeTimeout = d.DecodeTimeout
	}
	if sink == nil {
		sink = func(stt.Utterance) {}
	}

	base, cancel := context.WithCancel(context.Background())
	e := &Ears{
		capturer:    capturer,
		transcriber: transcriber,
		filter:      stt.NewFilter(nil),
		sink:        sink,
		cfg:         cfg,
		logger:      logger.With().Str("component", "ears").Logger(),
		base:        base,
		shutdown:    cancel,
	}
	e.available = capturer != nil && capturer.Available() &&
		transcriber != nil && transcriber.Available()
	if e.available {
		e.logger.Info().Str("transcriber", transcriber.Name()).Msg("Speech input ready")
	} else {
		e.logger.Warn().Msg("Speech input unavailable (no recorder or no transcriber credentials)")
	}
	return e
}

// IsAvailable reports whether speech input works.
func (e *Ears) IsAvailable() bool { return e.available }

// Listening reports whether continuous listening is on.
func (e *Ears) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode == modeContinuous
}

// ListenOnce captures and decodes a single phrase, waiting up to timeout
// for speech to begin. It reports false on timeout, silence, recognition
// failure or when the microphone is busy.
func (e *Ears) ListenOnce(ctx context.Context, timeout time.Duration) (string, bool) {
	if !e.available {
		return "", false
	}
	e.mu.Lock()
	if e.mode != modeIdle {
		e.mu.Unlock()
		e.logger.Info().Err(ErrMicrophoneBusy).Msg("Listen once refused")
		return "", false
	}
	e.mode = modeOnce
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.mode = modeIdle
		e.mu.Unlock()
	}()

	phrase, err := e.capturer.Listen(ctx, timeout, e.cfg.PhraseLimit)
	if err != nil {
		e.logger.Debug().Err(err).Msg("No phrase captured")
		return "", false
	}
	text, err := e.transcribe(ctx, phrase)
	if err != nil {
		e.logger.Debug().Err(err).Msg("Phrase not recognized")
		return "", false
	}
	return text, true
}

// StartListening begins continuous listening.
func (e *Ears) StartListening() error {
	if !e.available {
		return ErrSpeechInputUnavailable
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != modeIdle {
		return ErrMicrophoneBusy
	}

	ctx, cancel := context.WithCancel(e.base)
	e.mode = modeContinuous
	e.epoch++
	e.stop = cancel
	e.captured = make(chan struct{})
	go e.captureLoop(ctx, e.epoch, e.captured)

	e.logger.Info().Msg("Continuous listening started")
	return nil
}

// StopListening ends continuous listening and waits for the capture
// goroutine to release the microphone. Decodes still running finish, but
// their results are dropped.
func (e *Ears) StopListening() {
	e.mu.Lock()
	if e.mode != modeContinuous {
		e.mu.Unlock()
		return
	}
	e.stop()
	e.stop = nil
	e.mode = modeIdle
	e.epoch++
	captured := e.captured
	e.mu.Unlock()

	<-captured
	e.logger.Info().Msg("Continuous listening stopped")
}

// Close stops listening and waits for every decode goroutine.
func (e *Ears) Close() {
	e.StopListening()
	e.shutdown()
	e.decode.Wait()
}

func (e *Ears) captureLoop(ctx context.Context, epoch uint64, done chan struct{}) {
	defer close(done)
	for {
		phrase, err := e.capturer.Listen(ctx, e.cfg.SegmentWait, e.cfg.Segment)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, audio.ErrWaitTimeout):
			continue
		case err != nil:
			e.logger.Debug().Err(err).Msg("Capture failed")
			if !scheduler.Sleep(ctx, time.Second) {
				return
			}
			continue
		}

		e.decode.Add(1)
		go e.decodeSegment(epoch, phrase)
	}
}

func (e *Ears) decodeSegment(epoch uint64, phrase audio.Phrase) {
	defer e.decode.Done()
	ctx, cancel := context.WithTimeout(e.base, e.cfg.DecodeTimeout)
	defer cancel()

	text, err := e.transcribe(ctx, phrase)
	switch {
	case errors.Is(err, stt.ErrNoSpeech):
		metrics.Recognitions.WithLabelValues("empty").Inc()
		return
	case err != nil:
		metrics.Recognitions.WithLabelValues("error").Inc()
		e.logger.Debug().Err(err).Msg("Segment not recognized")
		return
	}
	if !stt.IsAddressed(text, e.cfg.Name) {
		metrics.Recognitions.WithLabelValues("ignored").Inc()
		return
	}
	metrics.Recognitions.WithLabelValues("ok").Inc()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != modeContinuous || e.epoch != epoch {
		return
	}
	e.sink(stt.Utterance{Text: text, Addressed: true, At: phrase.StartedAt})
}

func (e *Ears) transcribe(ctx context.Context, phrase audio.Phrase) (string, error) {
	text, err := e.transcriber.Transcribe(ctx, stt.Segment{
		PCM:        phrase.PCM,
		SampleRate: phrase.Format.SampleRate,
		Channels:   phrase.Format.Channels,
		CapturedAt: phrase.StartedAt,
	})
	if err != nil {
		return "", err
	}
	text, ok := e.filter.Clean(text)
	if !ok {
		return "", stt.ErrNoSpeech
	}
	return text, nil
}
