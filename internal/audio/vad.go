package audio

import (
	"math"
	"sync"
	"time"
)

// VAD implements Voice Activity Detection using RMS energy analysis.
// Silence is measured in audio time, so results do not depend on how fast
// chunks arrive.
type VAD struct {
	config VADConfig
	mu     sync.Mutex

	// State
	isActive bool
	silence  time.Duration

	// Smoothing
	energyHistory []float64
	historyIndex  int
}

// VADConfig holds VAD configuration
type VADConfig struct {
	Threshold       float64       `mapstructure:"threshold" yaml:"threshold"`               // RMS threshold (0-1)
	SmoothingFrames int           `mapstructure:"smoothing_frames" yaml:"smoothing_frames"` // Number of chunks to smooth
	MaxSilence      time.Duration `mapstructure:"max_silence" yaml:"max_silence"`           // Silence that ends a phrase
}

// DefaultVADConfig returns sensible defaults
func DefaultVADConfig() VADConfig {
	return VADConfig{
		Threshold:       0.01,
		SmoothingFrames: 3,
		MaxSilence:      800 * time.Millisecond,
	}
}

// NewVAD creates a new VAD instance
func NewVAD(config VADConfig) *VAD {
	d := DefaultVADConfig()
	if config.Threshold <= 0 {
		config.Threshold = d.Threshold
	}
	if config.SmoothingFrames <= 0 {
		config.SmoothingFrames = d.SmoothingFrames
	}
	if config.MaxSilence <= 0 {
		config.MaxSilence = d.MaxSilence
	}
	return &VAD{
		config:        config,
		energyHistory: make([]float64, config.SmoothingFrames),
	}
}

// Process analyzes a 16-bit PCM chunk covering dur of audio.
func (v *VAD) Process(chunk []byte, dur time.Duration) VADResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	rms := RMS(chunk)
	v.energyHistory[v.historyIndex] = rms
	v.historyIndex = (v.historyIndex + 1) % len(v.energyHistory)
	smoothed := v.smoothed()

	isSpeech := smoothed >= v.config.Threshold
	switch {
	case isSpeech:
		v.isActive = true
		v.silence = 0
	case v.isActive:
		v.silence += dur
		if v.silence > v.config.MaxSilence {
			v.isActive = false
		} else {
			// within silence tolerance
			isSpeech = true
		}
	}

	var confidence float64
	if isSpeech {
		confidence = math.Min(1.0, 0.5+(smoothed-v.config.Threshold)*10)
	} else {
		confidence = math.Max(0.0, 0.5-(v.config.Threshold-smoothed)*10)
	}

	return VADResult{IsSpeech: isSpeech, Confidence: confidence, RMS: smoothed}
}

func (v *VAD) smoothed() float64 {
	var sum float64
	for _, e := range v.energyHistory {
		sum += e
	}
	return sum / float64(len(v.energyHistory))
}

// IsActive returns whether speech is currently detected
func (v *VAD) IsActive() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isActive
}

// Reset clears VAD state
func (v *VAD) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isActive = false
	v.silence = 0
	v.historyIndex = 0
	for i := range v.energyHistory {
		v.energyHistory[i] = 0
	}
}

// SetThreshold changes the energy threshold.
func (v *VAD) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	v.mu.Lock()
	v.config.Threshold = threshold
	v.mu.Unlock()
}

// RMS computes the normalized root mean square energy of 16-bit
// little-endian PCM.
func RMS(pcm []byte) float64 {
	var sum float64
	var count int
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}
