// Package tts provides speech output engines for Pixie.
//
// Every engine blocks until playback has finished. Cancelling the context
// kills the underlying process, which is how an utterance is interrupted.
package tts

import (
	"context"
	"errors"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog"
)

// Common errors
var (
	ErrEngineUnavailable = errors.New("speech engine unavailable")
	ErrEmptyText         = errors.New("nothing to speak")
)

// Engine synthesizes and plays text.
type Engine interface {
	// Name returns the engine identifier (e.g. "say", "piper").
	Name() string

	// Available reports whether the engine can run on this machine.
	Available() bool

	// Speak synthesizes and plays text, returning when playback ends or ctx
	// is cancelled.
	Speak(ctx context.Context, text string) error
}

// Options configures engine selection.
type Options struct {
	Voice       string
	Rate        int // words per minute, 0 = engine default
	PiperBinary string
	PiperModel  string
}

// Select returns the engine named by provider. "auto" picks the first
// available of say, piper and espeak. When nothing fits, the returned
// engine reports itself unavailable.
func Select(provider string, opts Options, logger zerolog.Logger) Engine {
	candidates := map[string]func() Engine{
		"say":    func() Engine { return NewSay(opts, logger) },
		"piper":  func() Engine { return NewPiper(opts, logger) },
		"espeak": func() Engine { return NewESpeak(opts, logger) },
	}

	switch provider {
	case "", "auto":
		for _, name := range []string{"say", "piper", "espeak"} {
			if e := candidates[name](); e.Available() {
				return e
			}
		}
		return Silent{}
	case "none":
		return Silent{}
	}
	if mk, ok := candidates[provider]; ok {
		return mk()
	}
	logger.Warn().Str("provider", provider).Msg("Unknown TTS provider, speech disabled")
	return Silent{}
}

// Silent is the engine used when speech output is disabled.
type Silent struct{}

func (Silent) Name() string                          { return "none" }
func (Silent) Available() bool                       { return false }
func (Silent) Speak(context.Context, string) error { return ErrEngineUnavailable }

// findPlayer returns a command that plays a WAV file.
func findPlayer() (string, []string) {
	var candidates [][]string
	if runtime.GOOS == "darwin" {
		candidates = append(candidates, []string{"afplay"})
	}
	candidates = append(candidates,
		[]string{"paplay"},
		[]string{"aplay", "-q"},
		[]string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
	)
	for _, c := range candidates {
		if path, err := exec.LookPath(c[0]); err == nil {
			return path, c[1:]
		}
	}
	return "", nil
}
