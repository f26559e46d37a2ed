// Package stt provides speech recognition for Pixie: transcription of
// captured audio segments and the filters applied to the resulting text.
package stt

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrTranscriberUnavailable = errors.New("speech recognition unavailable")
	ErrNoSpeech               = errors.New("no speech recognized")
	ErrAudioTooShort          = errors.New("audio too short for transcription")
)

// Segment is a captured stretch of 16-bit little-endian PCM audio.
type Segment struct {
	PCM        []byte
	SampleRate int
	Channels   int
	CapturedAt time.Time
}

// Duration returns the audio length.
func (s Segment) Duration() time.Duration {
	rate, ch := s.SampleRate, s.Channels
	if rate <= 0 {
		rate = 16000
	}
	if ch <= 0 {
		ch = 1
	}
	samples := len(s.PCM) / (2 * ch)
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

// Utterance is recognized speech ready for the agent.
type Utterance struct {
	Text      string    `json:"text"`
	Addressed bool      `json:"addressed"` // spoken to the pet rather than overheard
	At        time.Time `json:"at"`
}

// Transcriber turns a segment into text.
type Transcriber interface {
	// Name returns the transcriber identifier.
	Name() string

	// Available reports whether the transcriber is usable (credentials
	// present, endpoint configured).
	Available() bool

	// Transcribe returns the recognized text, or ErrNoSpeech.
	Transcribe(ctx context.Context, seg Segment) (string, error)
}
