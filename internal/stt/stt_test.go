package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAddressed(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Hey Pixie, look at this", true},
		{"what time is it", true},
		{"Could you check the build", true},
		{"the build is green?", true},
		{"I need some advice on naming", true},
		{"can somebody help me", true},
		{"ok moving on to the next file", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsAddressed(tt.text, ""), "IsAddressed(%q)", tt.text)
	}
}

func TestIsAddressed_CustomName(t *testing.T) {
	assert.True(t, IsAddressed("Biscuit, are we done yet", "Biscuit"))
	assert.False(t, IsAddressed("Biscuit, are we done yet", ""))
}

func TestFilter_Clean(t *testing.T) {
	f := NewFilter(nil)

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"um, what is this", "what is this", true},
		{"I uh think, you know, it works", "I think, it works", true},
		{"Umm... hmm", "", false},
		{"", "", false},
		{"plain sentence", "plain sentence", true},
	}
	for _, tt := range tests {
		got, ok := f.Clean(tt.in)
		assert.Equal(t, tt.wantOK, ok, "Clean(%q) ok", tt.in)
		if tt.wantOK {
			assert.Equal(t, tt.want, got, "Clean(%q)", tt.in)
		}
	}
}

func TestFilter_EmptyList(t *testing.T) {
	f := NewFilter([]string{})
	got, ok := f.Clean("  um   hello  ")
	assert.True(t, ok)
	assert.Equal(t, "um hello", got)
}

func TestSegment_Duration(t *testing.T) {
	seg := Segment{PCM: make([]byte, 32000), SampleRate: 16000, Channels: 1}
	assert.Equal(t, time.Second, seg.Duration())

	seg = Segment{PCM: make([]byte, 32000)}
	assert.Equal(t, time.Second, seg.Duration())
}

func TestWriteWAV(t *testing.T) {
	var buf bytes.Buffer
	pcm := make([]byte, 100)
	require.NoError(t, writeWAV(&buf, Segment{PCM: pcm, SampleRate: 16000, Channels: 1}))

	out := buf.Bytes()
	require.Len(t, out, 44+len(pcm))
	assert.Equal(t, "RIFF", string(out[0:4]))
	assert.Equal(t, "WAVE", string(out[8:12]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(out[24:28]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(out[40:44]))
}

func TestWhisper_Transcribe(t *testing.T) {
	var gotAuth, gotModel string
	var gotFile []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		f, _, err := r.FormFile("file")
		if err == nil {
			gotFile, _ = io.ReadAll(f)
			f.Close()
		}
		_, _ = w.Write([]byte(`{"text":"  hello pixie  "}`))
	}))
	defer srv.Close()

	w := NewWhisper(WhisperConfig{APIKey: "k", BaseURL: srv.URL + "/"}, zerolog.Nop())
	require.True(t, w.Available())

	text, err := w.Transcribe(context.Background(), Segment{PCM: make([]byte, 6400)})
	require.NoError(t, err)
	assert.Equal(t, "hello pixie", text)
	assert.Equal(t, "Bearer k", gotAuth)
	assert.Equal(t, "whisper-large-v3-turbo", gotModel)
	assert.Len(t, gotFile, 44+6400)
}

func TestWhisper_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	seg := Segment{PCM: make([]byte, 6400)}

	_, err := NewWhisper(WhisperConfig{}, zerolog.Nop()).Transcribe(context.Background(), seg)
	assert.ErrorIs(t, err, ErrTranscriberUnavailable)

	w := NewWhisper(WhisperConfig{APIKey: "k", BaseURL: srv.URL}, zerolog.Nop())
	_, err = w.Transcribe(context.Background(), Segment{PCM: make([]byte, 10)})
	assert.ErrorIs(t, err, ErrAudioTooShort)

	_, err = w.Transcribe(context.Background(), seg)
	assert.ErrorIs(t, err, ErrNoSpeech)

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv2.Close()
	_, err = NewWhisper(WhisperConfig{APIKey: "k", BaseURL: srv2.URL}, zerolog.Nop()).Transcribe(context.Background(), seg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
