package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Source streams raw microphone PCM.
type Source interface {
	Name() string
	Available() bool
	// Open starts capture. Cancelling ctx or closing the stream stops it.
	Open(ctx context.Context, f Format) (io.ReadCloser, error)
}

// CommandSource captures through an external recorder that writes raw
// s16le PCM to stdout.
type CommandSource struct {
	name string
	bin  string
	args func(Format) []string
}

// Name returns the recorder identifier.
func (s *CommandSource) Name() string { return s.name }

// Available reports whether the recorder binary is on PATH.
func (s *CommandSource) Available() bool {
	_, err := exec.LookPath(s.bin)
	return err == nil
}

// Open launches the recorder.
func (s *CommandSource) Open(ctx context.Context, f Format) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, s.bin, s.args(f)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdout: %w", s.name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.name, err)
	}
	return &procStream{ReadCloser: stdout, cmd: cmd}, nil
}

type procStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *procStream) Close() error {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.ReadCloser.Close()
	_ = p.cmd.Wait()
	return nil
}

func rate(f Format) string     { return strconv.Itoa(f.SampleRate) }
func channels(f Format) string { return strconv.Itoa(f.Channels) }

// NewARecord captures with ALSA's arecord.
func NewARecord() *CommandSource {
	return &CommandSource{name: "arecord", bin: "arecord", args: func(f Format) []string {
		return []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", rate(f), "-c", channels(f)}
	}}
}

// NewSoxRec captures with sox's rec.
func NewSoxRec() *CommandSource {
	return &CommandSource{name: "rec", bin: "rec", args: func(f Format) []string {
		return []string{"-q", "-t", "raw", "-b", "16", "-e", "signed-integer", "-r", rate(f), "-c", channels(f), "-"}
	}}
}

// NewFFmpeg captures the default input device with ffmpeg.
func NewFFmpeg() *CommandSource {
	input := []string{"-f", "pulse", "-i", "default"}
	if runtime.GOOS == "darwin" {
		input = []string{"-f", "avfoundation", "-i", ":0"}
	}
	return &CommandSource{name: "ffmpeg", bin: "ffmpeg", args: func(f Format) []string {
		args := append([]string{"-loglevel", "quiet", "-nostdin"}, input...)
		return append(args, "-f", "s16le", "-ac", channels(f), "-ar", rate(f), "-")
	}}
}

// SelectSource returns the named recorder, or the first available one for
// "auto". It returns nil when nothing usable is installed.
func SelectSource(name string) Source {
	candidates := map[string]*CommandSource{
		"arecord": NewARecord(),
		"rec":     NewSoxRec(),
		"ffmpeg":  NewFFmpeg(),
	}
	if s, ok := candidates[name]; ok {
		return s
	}
	if name != "" && name != "auto" {
		return nil
	}
	for _, n := range []string{"arecord", "rec", "ffmpeg"} {
		if candidates[n].Available() {
			return candidates[n]
		}
	}
	return nil
}

// Capturer cuts one phrase at a time out of a Source.
type Capturer struct {
	src    Source
	format Format
	vad    VADConfig
	chunk  time.Duration
	logger zerolog.Logger
}

// NewCapturer creates a capturer. A nil src makes every Listen fail with
// ErrRecorderUnavailable.
func NewCapturer(src Source, vad VADConfig, logger zerolog.Logger) *Capturer {
	return &Capturer{
		src:    src,
		format: DefaultFormat,
		vad:    vad,
		chunk:  100 * time.Millisecond,
		logger: logger.With().Str("component", "capture").Logger(),
	}
}

// Available reports whether a recorder is installed.
func (c *Capturer) Available() bool {
	return c.src != nil && c.src.Available()
}

// SetThreshold changes the speech energy threshold for later phrases.
func (c *Capturer) SetThreshold(threshold float64) {
	if threshold > 0 {
		c.vad.Threshold = threshold
	}
}

// Listen waits up to timeout for speech to begin, then records until the
// speaker pauses or phraseLimit is reached. Zero disables either bound.
func (c *Capturer) Listen(ctx context.Context, timeout, phraseLimit time.Duration) (Phrase, error) {
	if !c.Available() {
		return Phrase{}, ErrRecorderUnavailable
	}
	stream, err := c.src.Open(ctx, c.format)
	if err != nil {
		return Phrase{}, err
	}
	defer stream.Close()
	return c.capture(ctx, stream, timeout, phraseLimit)
}

func (c *Capturer) capture(ctx context.Context, r io.Reader, timeout, phraseLimit time.Duration) (Phrase, error) {
	vad := NewVAD(c.vad)
	chunk := make([]byte, c.format.BytesFor(c.chunk))
	prev := make([]byte, 0, len(chunk))

	var (
		buf       bytes.Buffer
		started   bool
		startedAt time.Time
		waited    time.Duration
		spoken    time.Duration
	)
	phrase := func() Phrase {
		return Phrase{
			PCM:       buf.Bytes(),
			Format:    c.format,
			StartedAt: startedAt,
			Duration:  c.format.DurationOf(buf.Len()),
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return Phrase{}, err
		}
		if _, err := io.ReadFull(r, chunk); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Phrase{}, ctxErr
			}
			if started && buf.Len() > 0 {
				return phrase(), nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Phrase{}, ErrStreamClosed
			}
			return Phrase{}, fmt.Errorf("read audio: %w", err)
		}

		res := vad.Process(chunk, c.chunk)
		if !started {
			if !res.IsSpeech {
				waited += c.chunk
				if timeout > 0 && waited >= timeout {
					return Phrase{}, ErrWaitTimeout
				}
				prev = append(prev[:0], chunk...)
				continue
			}
			started = true
			startedAt = time.Now()
			buf.Write(prev)
			c.logger.Debug().Float64("rms", res.RMS).Msg("Speech started")
		}

		buf.Write(chunk)
		spoken += c.chunk
		if !res.IsSpeech || (phraseLimit > 0 && spoken >= phraseLimit) {
			return phrase(), nil
		}
	}
}
