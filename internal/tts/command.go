package tts

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Command is an engine that speaks by running one program per utterance,
// such as macOS say or espeak-ng.
type Command struct {
	name   string
	bin    string
	args   func(text string) []string
	goos   string // restrict to one OS, empty for any
	logger zerolog.Logger
}

// NewCommand builds an engine around an arbitrary program. args receives
// the text and returns the full argument list.
func NewCommand(name, bin string, args func(text string) []string, logger zerolog.Logger) *Command {
	return &Command{
		name:   name,
		bin:    bin,
		args:   args,
		logger: logger.With().Str("provider", name).Logger(),
	}
}

// NewSay returns the macOS say engine.
func NewSay(opts Options, logger zerolog.Logger) *Command {
	c := NewCommand("say", "say", func(text string) []string {
		var args []string
		if opts.Voice != "" {
			args = append(args, "-v", opts.Voice)
		}
		if opts.Rate > 0 {
			args = append(args, "-r", strconv.Itoa(opts.Rate))
		}
		return append(args, text)
	}, logger)
	c.goos = "darwin"
	return c
}

// NewESpeak returns the espeak-ng engine, falling back to espeak.
func NewESpeak(opts Options, logger zerolog.Logger) *Command {
	bin := "espeak-ng"
	if _, err := exec.LookPath(bin); err != nil {
		bin = "espeak"
	}
	return NewCommand("espeak", bin, func(text string) []string {
		var args []string
		if opts.Voice != "" {
			args = append(args, "-v", opts.Voice)
		}
		if opts.Rate > 0 {
			args = append(args, "-s", strconv.Itoa(opts.Rate))
		}
		return append(args, "--", text)
	}, logger)
}

// Name returns the engine identifier.
func (c *Command) Name() string { return c.name }

// Available checks the OS and that the program is on PATH.
func (c *Command) Available() bool {
	if c.goos != "" && runtime.GOOS != c.goos {
		return false
	}
	_, err := exec.LookPath(c.bin)
	return err == nil
}

// Speak runs the program and waits for it.
func (c *Command) Speak(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmptyText
	}
	start := time.Now()
	cmd := exec.CommandContext(ctx, c.bin, c.args(text)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w (%s)", c.name, err, output)
	}
	c.logger.Debug().
		Int("textLen", len(text)).
		Dur("took", time.Since(start)).
		Msg("Utterance played")
	return nil
}
