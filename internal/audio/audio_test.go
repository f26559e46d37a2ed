package audio

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chunkBytes = 3200 // 100ms at 16kHz mono

func pcm(silent, loud, trailing int) []byte {
	var b bytes.Buffer
	b.Write(make([]byte, silent*chunkBytes))
	for i := 0; i < loud*chunkBytes/2; i++ {
		b.Write([]byte{0x00, 0x40}) // 0.5 full scale
	}
	b.Write(make([]byte, trailing*chunkBytes))
	return b.Bytes()
}

func newTestCapturer() *Capturer {
	return NewCapturer(nil, DefaultVADConfig(), zerolog.Nop())
}

func TestRMS(t *testing.T) {
	assert.Equal(t, 0.0, RMS(nil))
	assert.Equal(t, 0.0, RMS(make([]byte, 100)))
	assert.InDelta(t, 0.5, RMS(pcm(0, 1, 0)), 1e-9)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, chunkBytes, DefaultFormat.BytesFor(100*time.Millisecond))
	assert.Equal(t, time.Second, DefaultFormat.DurationOf(32000))
	assert.Equal(t, time.Duration(0), Format{}.DurationOf(100))
}

func TestVAD_HangoverThenRelease(t *testing.T) {
	v := NewVAD(VADConfig{Threshold: 0.01, SmoothingFrames: 1, MaxSilence: 200 * time.Millisecond})
	loud, quiet := pcm(0, 1, 0), pcm(1, 0, 0)
	step := 100 * time.Millisecond

	assert.True(t, v.Process(loud, step).IsSpeech)
	assert.True(t, v.Process(quiet, step).IsSpeech)
	assert.True(t, v.Process(quiet, step).IsSpeech)
	assert.False(t, v.Process(quiet, step).IsSpeech)
	assert.False(t, v.IsActive())

	v.Process(loud, step)
	v.Reset()
	assert.False(t, v.IsActive())
}

func TestCapture_EndsOnSilence(t *testing.T) {
	c := newTestCapturer()
	p, err := c.capture(context.Background(), bytes.NewReader(pcm(5, 10, 20)), 5*time.Second, 0)
	require.NoError(t, err)

	// one chunk of lead-in, the speech, and the silence that closed it
	assert.Len(t, p.PCM, 22*chunkBytes)
	assert.Equal(t, 2200*time.Millisecond, p.Duration)
	assert.False(t, p.StartedAt.IsZero())
}

func TestCapture_PhraseLimit(t *testing.T) {
	c := newTestCapturer()
	p, err := c.capture(context.Background(), bytes.NewReader(pcm(2, 100, 0)), 0, time.Second)
	require.NoError(t, err)
	assert.Len(t, p.PCM, 11*chunkBytes)
}

func TestCapture_WaitTimeout(t *testing.T) {
	c := newTestCapturer()
	_, err := c.capture(context.Background(), bytes.NewReader(pcm(60, 0, 0)), time.Second, 0)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestCapture_StreamEnds(t *testing.T) {
	c := newTestCapturer()
	_, err := c.capture(context.Background(), bytes.NewReader(pcm(3, 0, 0)), 0, 0)
	assert.ErrorIs(t, err, ErrStreamClosed)

	// speech cut off by the end of stream is still returned
	p, err := c.capture(context.Background(), bytes.NewReader(pcm(1, 3, 0)), 0, 0)
	require.NoError(t, err)
	assert.Len(t, p.PCM, 4*chunkBytes)
}

func TestCapture_Cancelled(t *testing.T) {
	c := newTestCapturer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.capture(ctx, bytes.NewReader(pcm(10, 0, 0)), 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListen_NoRecorder(t *testing.T) {
	c := newTestCapturer()
	assert.False(t, c.Available())
	_, err := c.Listen(context.Background(), time.Second, time.Second)
	assert.ErrorIs(t, err, ErrRecorderUnavailable)
}

func TestSelectSource(t *testing.T) {
	assert.Equal(t, "arecord", SelectSource("arecord").Name())
	assert.Equal(t, "ffmpeg", SelectSource("ffmpeg").Name())
	assert.Nil(t, SelectSource("none"))
}
