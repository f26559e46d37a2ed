// Package audio captures microphone input for Pixie and gates it with
// energy-based voice activity detection.
package audio

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrRecorderUnavailable = errors.New("no audio recorder available")
	ErrWaitTimeout         = errors.New("no speech before timeout")
	ErrStreamClosed        = errors.New("audio stream closed")
)

// Format describes signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int `json:"sample_rate"` // Default: 16000 Hz for STT
	Channels   int `json:"channels"`    // Default: 1 (mono)
}

// DefaultFormat is what the transcriber expects.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// BytesFor returns the PCM byte count covering d.
func (f Format) BytesFor(d time.Duration) int {
	n := int(d * time.Duration(f.SampleRate) / time.Second)
	return n * 2 * f.Channels
}

// DurationOf returns the audio length of n PCM bytes.
func (f Format) DurationOf(n int) time.Duration {
	frame := 2 * f.Channels
	if frame == 0 || f.SampleRate == 0 {
		return 0
	}
	return time.Duration(n/frame) * time.Second / time.Duration(f.SampleRate)
}

// VADResult represents the result of voice activity detection
type VADResult struct {
	IsSpeech   bool    `json:"is_speech"`
	Confidence float64 `json:"confidence"`
	RMS        float64 `json:"rms"`
}

// Phrase is one captured utterance.
type Phrase struct {
	PCM       []byte
	Format    Format
	StartedAt time.Time
	Duration  time.Duration
}
