// Package logging provides structured logging with file and console output
// and a bounded in-memory history that the presence hub can stream.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogEntry is one record kept in memory for the overlay's log view.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// Config holds logger configuration.
type Config struct {
	Dir        string    // log file directory; empty disables the file
	Level      string    // zerolog level name (default: info)
	MaxHistory int       // entries kept in memory (default: 500)
	Console    io.Writer // console output; nil disables it
}

// DefaultConfig logs to ~/.pixie/logs and stdout.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Dir:        filepath.Join(home, ".pixie", "logs"),
		Level:      "info",
		MaxHistory: 500,
		Console:    os.Stdout,
	}
}

// Logger wraps zerolog with an optional log file and log history.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
	hist    *history
}

// New creates a Logger.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 500
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	hist := &history{max: cfg.MaxHistory}
	writers := []io.Writer{hist}

	var file *os.File
	var logPath string
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		logPath = filepath.Join(cfg.Dir, fmt.Sprintf("pixie-%s.log", time.Now().Format("2006-01-02")))
		file, err = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, file)
	}
	if cfg.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: cfg.Console, TimeFormat: "15:04:05"})
	}

	zlog := zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", "pixie").
		Logger()

	l := &Logger{zlog: zlog, file: file, logPath: logPath, hist: hist}
	initLog := l.Component("logging")
	initLog.Debug().
		Str("file", logPath).
		Str("level", level.String()).
		Msg("Logger initialized")
	return l, nil
}

// Component returns a logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the root logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zlog }

// SetLevel changes the minimum level of loggers derived afterwards.
func (l *Logger) SetLevel(name string) error {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", name, err)
	}
	l.zlog = l.zlog.Level(level)
	return nil
}

// SetOnLog registers a callback invoked for every entry.
func (l *Logger) SetOnLog(fn func(LogEntry)) { l.hist.setOnLog(fn) }

// History returns up to limit recent entries, oldest first. A non-positive
// limit returns all of them.
func (l *Logger) History(limit int) []LogEntry { return l.hist.last(limit) }

// Path returns the log file path, or "" when file logging is off.
func (l *Logger) Path() string { return l.logPath }

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// history is an io.Writer that keeps decoded zerolog lines.
type history struct {
	mu      sync.RWMutex
	entries []LogEntry
	max     int
	onLog   func(LogEntry)
}

func (h *history) Write(p []byte) (int, error) {
	var raw struct {
		Time      string `json:"time"`
		Level     string `json:"level"`
		Component string `json:"component"`
		Message   string `json:"message"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(p, &raw); err != nil {
		// not a zerolog JSON line; keep it out of history
		return len(p), nil
	}
	entry := LogEntry{
		Timestamp: raw.Time,
		Level:     raw.Level,
		Component: raw.Component,
		Message:   raw.Message,
		Error:     raw.Error,
	}

	h.mu.Lock()
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	fn := h.onLog
	h.mu.Unlock()

	if fn != nil {
		fn(entry)
	}
	return len(p), nil
}

func (h *history) setOnLog(fn func(LogEntry)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onLog = fn
}

func (h *history) last(limit int) []LogEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 || limit > len(h.entries) {
		limit = len(h.entries)
	}
	out := make([]LogEntry, limit)
	copy(out, h.entries[len(h.entries)-limit:])
	return out
}
