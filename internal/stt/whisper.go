package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// WhisperConfig holds configuration for an OpenAI-compatible transcription
// endpoint. The defaults target Groq's hosted Whisper.
type WhisperConfig struct {
	APIKey   string
	BaseURL  string        // e.g. https://api.groq.com/openai/v1
	Model    string        // whisper-large-v3-turbo
	Language string        // optional language hint
	Timeout  time.Duration
}

// DefaultWhisperConfig returns the Groq defaults.
func DefaultWhisperConfig() WhisperConfig {
	return WhisperConfig{
		BaseURL: "https://api.groq.com/openai/v1",
		Model:   "whisper-large-v3-turbo",
		Timeout: 10 * time.Second,
	}
}

// Whisper transcribes through the /audio/transcriptions endpoint.
type Whisper struct {
	cfg    WhisperConfig
	client *http.Client
	logger zerolog.Logger
}

// NewWhisper creates a Whisper transcriber. Missing fields use the
// defaults.
func NewWhisper(cfg WhisperConfig, logger zerolog.Logger) *Whisper {
	d := DefaultWhisperConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Whisper{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("provider", "whisper").Logger(),
	}
}

// Name returns the transcriber identifier.
func (w *Whisper) Name() string { return "whisper" }

// Available reports whether an API key is configured.
func (w *Whisper) Available() bool { return w.cfg.APIKey != "" }

// Transcribe uploads the segment as a WAV file.
func (w *Whisper) Transcribe(ctx context.Context, seg Segment) (string, error) {
	if !w.Available() {
		return "", ErrTranscriberUnavailable
	}
	if len(seg.PCM) < 3200 { // 100ms at 16kHz mono
		return "", ErrAudioTooShort
	}
	start := time.Now()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if err := writeWAV(part, seg); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	fields := map[string]string{
		"model":           w.cfg.Model,
		"response_format": "json",
		"temperature":     "0",
	}
	if w.cfg.Language != "" {
		fields["language"] = w.cfg.Language
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write %s field: %w", k, err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	w.logger.Debug().
		Dur("audio", seg.Duration()).
		Dur("took", time.Since(start)).
		Int("chars", len(text)).
		Msg("Transcription complete")
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// writeWAV writes a canonical 44-byte header followed by the PCM data.
func writeWAV(out io.Writer, seg Segment) error {
	rate, ch := seg.SampleRate, seg.Channels
	if rate <= 0 {
		rate = 16000
	}
	if ch <= 0 {
		ch = 1
	}
	const bits = 16
	header := struct {
		Riff          [4]byte
		FileSize      uint32
		Wave          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		Riff:          [4]byte{'R', 'I', 'F', 'F'},
		FileSize:      uint32(36 + len(seg.PCM)),
		Wave:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      uint16(ch),
		SampleRate:    uint32(rate),
		ByteRate:      uint32(rate * ch * bits / 8),
		BlockAlign:    uint16(ch * bits / 8),
		BitsPerSample: bits,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(seg.PCM)),
	}
	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return err
	}
	_, err := out.Write(seg.PCM)
	return err
}
