// Package config provides configuration management for Pixie.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/pixie/internal/activity"
)

// Config holds all application configuration.
type Config struct {
	Agent      AgentConfig      `mapstructure:"agent"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Activity   ActivityConfig   `mapstructure:"activity"`
	Commentary CommentaryConfig `mapstructure:"commentary"`
	Mood       MoodConfig       `mapstructure:"mood"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	UI         UIConfig         `mapstructure:"ui"`
	Screen     ScreenConfig     `mapstructure:"screen"`
	AI         AIConfig         `mapstructure:"ai"`
	TTS        TTSConfig        `mapstructure:"tts"`
	STT        STTConfig        `mapstructure:"stt"`
	Presence   PresenceConfig   `mapstructure:"presence"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AgentConfig identifies the pet.
type AgentConfig struct {
	Name string `mapstructure:"name"`
}

// LedgerConfig sizes the conversation ledger.
type LedgerConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// ActivityConfig configures activity classification.
type ActivityConfig struct {
	HistoryCapacity int               `mapstructure:"history_capacity"`
	IdleAfter       time.Duration     `mapstructure:"idle_after"` // window unchanged this long counts as idle
	Keywords        activity.Keywords `mapstructure:"keywords"`
}

// CommentaryConfig tunes when the pet speaks unprompted.
type CommentaryConfig struct {
	Enabled                  bool          `mapstructure:"enabled"`
	BaseInterval             time.Duration `mapstructure:"base_interval"`
	IdleMultiplier           float64       `mapstructure:"idle_multiplier"`
	IdleSleepThreshold       int           `mapstructure:"idle_sleep_threshold"`
	CheckinIdleThreshold     int           `mapstructure:"checkin_idle_threshold"`
	QuietPeriod              time.Duration `mapstructure:"quiet_period"`
	OpportunisticProbability float64       `mapstructure:"opportunistic_probability"`
	ErrorDwell               time.Duration `mapstructure:"error_dwell"`
	ReactToActivity          bool          `mapstructure:"react_to_activity"`
}

// MoodConfig tunes mood recomputation.
type MoodConfig struct {
	RecomputeProbability float64 `mapstructure:"recompute_probability"`
	TableFile            string  `mapstructure:"table_file"`
}

// RateLimitConfig bounds outbound AI calls.
type RateLimitConfig struct {
	MaxCalls int           `mapstructure:"max_calls"`
	Window   time.Duration `mapstructure:"window"`
}

// UIConfig configures the pet window.
type UIConfig struct {
	Title     string        `mapstructure:"title"`
	FrameRate int           `mapstructure:"frame_rate"`
	MinSleep  time.Duration `mapstructure:"min_sleep"`
	Headless  bool          `mapstructure:"headless"`
	Width     int           `mapstructure:"width"`
	Height    int           `mapstructure:"height"`
}

// ScreenConfig configures the context source.
type ScreenConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Screenshots  bool          `mapstructure:"screenshots"`
}

// AIConfig configures the AI collaborator.
type AIConfig struct {
	Provider string        `mapstructure:"provider"` // gemini, none
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TTSConfig configures speech output.
type TTSConfig struct {
	Provider    string `mapstructure:"provider"` // auto, say, piper, espeak, none
	Voice       string `mapstructure:"voice"`
	Rate        int    `mapstructure:"rate"` // words per minute, 0 = engine default
	PiperBinary string `mapstructure:"piper_binary"`
	PiperModel  string `mapstructure:"piper_model"`
}

// STTConfig configures speech input.
type STTConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Continuous   bool          `mapstructure:"continuous"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Language     string        `mapstructure:"language"`
	Segment      time.Duration `mapstructure:"segment"`
	PhraseLimit  time.Duration `mapstructure:"phrase_limit"`
	AskTimeout   time.Duration `mapstructure:"ask_timeout"`
	VADThreshold float64       `mapstructure:"vad_threshold"`
	Recorder     string        `mapstructure:"recorder"` // auto, arecord, sox, ffmpeg
}

// PresenceConfig configures the websocket presence hub.
type PresenceConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the hub
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TranscriptConfig configures the SQLite transcript archive.
type TranscriptConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir, _ := GetConfigDir()
	return &Config{
		Agent:  AgentConfig{Name: "Pixie"},
		Ledger: LedgerConfig{Capacity: 50},
		Activity: ActivityConfig{
			HistoryCapacity: 20,
			IdleAfter:       3 * time.Minute,
			Keywords:        activity.DefaultKeywords(),
		},
		Commentary: CommentaryConfig{
			Enabled:                  true,
			BaseInterval:             60 * time.Second,
			IdleMultiplier:           2,
			IdleSleepThreshold:       5,
			CheckinIdleThreshold:     3,
			QuietPeriod:              5 * time.Minute,
			OpportunisticProbability: 0.3,
			ErrorDwell:               60 * time.Second,
			ReactToActivity:          true,
		},
		Mood: MoodConfig{
			RecomputeProbability: 0.4,
		},
		RateLimit: RateLimitConfig{
			MaxCalls: 10,
			Window:   time.Minute,
		},
		UI: UIConfig{
			Title:     "Pixie",
			FrameRate: 30,
			MinSleep:  time.Millisecond,
			Width:     160,
			Height:    160,
		},
		Screen: ScreenConfig{
			PollInterval: 2 * time.Second,
			Screenshots:  true,
		},
		AI: AIConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  15 * time.Second,
		},
		TTS: TTSConfig{
			Provider: "auto",
		},
		STT: STTConfig{
			Enabled:      true,
			Continuous:   true,
			BaseURL:      "https://api.groq.com/openai/v1",
			Model:        "whisper-large-v3-turbo",
			Language:     "en",
			Segment:      5 * time.Second,
			PhraseLimit:  10 * time.Second,
			AskTimeout:   5 * time.Second,
			VADThreshold: 0.01,
			Recorder:     "auto",
		},
		Presence: PresenceConfig{
			Addr: "127.0.0.1:7861",
		},
		Metrics: MetricsConfig{Enabled: true},
		Transcript: TranscriptConfig{
			Path: filepath.Join(dir, "transcript.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(dir, "logs"),
		},
	}
}

// FrameInterval returns the UI frame interval derived from the frame rate.
func (c UIConfig) FrameInterval() time.Duration {
	if c.FrameRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.FrameRate)
}

// Validate rejects values that would break the runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Ledger.Capacity <= 0 {
		errs = append(errs, errors.New("ledger.capacity must be positive"))
	}
	if c.Activity.HistoryCapacity <= 0 {
		errs = append(errs, errors.New("activity.history_capacity must be positive"))
	}
	if c.Commentary.BaseInterval <= 0 {
		errs = append(errs, errors.New("commentary.base_interval must be positive"))
	}
	if c.Commentary.IdleMultiplier < 1 {
		errs = append(errs, errors.New("commentary.idle_multiplier must be at least 1"))
	}
	if p := c.Commentary.OpportunisticProbability; p < 0 || p > 1 {
		errs = append(errs, errors.New("commentary.opportunistic_probability must be within [0,1]"))
	}
	if p := c.Mood.RecomputeProbability; p < 0 || p > 1 {
		errs = append(errs, errors.New("mood.recompute_probability must be within [0,1]"))
	}
	if c.RateLimit.MaxCalls <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("ratelimit.max_calls and ratelimit.window must be positive"))
	}
	if c.UI.FrameRate <= 0 {
		errs = append(errs, errors.New("ui.frame_rate must be positive"))
	}
	if c.Screen.PollInterval <= 0 {
		errs = append(errs, errors.New("screen.poll_interval must be positive"))
	}
	return errors.Join(errs...)
}

// Load reads configuration from ~/.pixie/config.yaml (or ./config.yaml) and
// PIXIE_* environment variables. A missing file is created with defaults.
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return DefaultConfig(), err
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return DefaultConfig(), err
	}

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return DefaultConfig(), fmt.Errorf("read config: %w", err)
		}
		if err := v.WriteConfigAs(filepath.Join(configDir, "config.yaml")); err != nil {
			return DefaultConfig(), fmt.Errorf("write default config: %w", err)
		}
	}
	return decode(v)
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return DefaultConfig(), fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

// Save writes cfg to ~/.pixie/config.yaml.
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	return SaveFile(cfg, filepath.Join(configDir, "config.yaml"))
}

// SaveFile writes cfg to path as YAML.
func SaveFile(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	v := viper.New()
	setDefaults(v, cfg)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".pixie"), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix("PIXIE")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyEnvFallbacks(cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvFallbacks fills credentials from the provider's usual variables.
func applyEnvFallbacks(cfg *Config) {
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	if cfg.STT.APIKey == "" {
		cfg.STT.APIKey = firstEnv("GROQ_API_KEY")
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Marshal renders cfg as YAML with credentials masked, for display.
func Marshal(cfg *Config) ([]byte, error) {
	masked := *cfg
	masked.AI.APIKey = mask(cfg.AI.APIKey)
	masked.STT.APIKey = mask(cfg.STT.APIKey)

	v := viper.New()
	setDefaults(v, &masked)
	return yaml.Marshal(v.AllSettings())
}

func mask(secret string) string {
	if len(secret) <= 8 {
		if secret == "" {
			return ""
		}
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}
