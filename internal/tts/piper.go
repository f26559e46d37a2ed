package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Piper speaks with the local Piper neural TTS: it renders a WAV file and
// plays it with the first available system player.
// https://github.com/rhasspy/piper
type Piper struct {
	binary     string
	model      string
	player     string
	playerArgs []string
	logger     zerolog.Logger
}

// NewPiper locates the piper binary and a WAV player.
func NewPiper(opts Options, logger zerolog.Logger) *Piper {
	binary := opts.PiperBinary
	if binary == "" {
		binary = findPiper()
	}
	model := opts.PiperModel
	if model == "" {
		home, _ := os.UserHomeDir()
		model = filepath.Join(home, ".pixie", "piper-voices", "en_US-amy-medium.onnx")
	}
	player, args := findPlayer()
	return &Piper{
		binary:     binary,
		model:      model,
		player:     player,
		playerArgs: args,
		logger:     logger.With().Str("provider", "piper").Logger(),
	}
}

func findPiper() string {
	if path, err := exec.LookPath("piper"); err == nil {
		return path
	}
	home, _ := os.UserHomeDir()
	for _, p := range []string{
		filepath.Join(home, ".local/bin/piper"),
		"/usr/local/bin/piper",
		"/opt/homebrew/bin/piper",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Name returns the engine identifier.
func (p *Piper) Name() string { return "piper" }

// Available requires the binary, the voice model and a player.
func (p *Piper) Available() bool {
	if p.binary == "" || p.player == "" {
		return false
	}
	if _, err := os.Stat(p.binary); err != nil {
		return false
	}
	if _, err := os.Stat(p.model); err != nil {
		p.logger.Debug().Str("model", p.model).Msg("Piper model not found")
		return false
	}
	return true
}

// Speak renders text to a temporary WAV file and plays it.
func (p *Piper) Speak(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmptyText
	}
	tmp, err := os.CreateTemp("", "pixie-tts-*.wav")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	wav := tmp.Name()
	tmp.Close()
	defer os.Remove(wav)

	synth := exec.CommandContext(ctx, p.binary, "--model", p.model, "--output_file", wav)
	synth.Stdin = strings.NewReader(text)
	if output, err := synth.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("piper synthesis failed: %w (%s)", err, output)
	}

	args := append(append([]string{}, p.playerArgs...), wav)
	play := exec.CommandContext(ctx, p.player, args...)
	if err := play.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("play %s: %w", filepath.Base(p.player), err)
	}
	return nil
}
