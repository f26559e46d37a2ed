package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var envReplacer = strings.NewReplacer(".", "_")

// setDefaults registers every key so AutomaticEnv can override it and so a
// written config file lists all of them.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("agent.name", cfg.Agent.Name)

	v.SetDefault("ledger.capacity", cfg.Ledger.Capacity)

	v.SetDefault("activity.history_capacity", cfg.Activity.HistoryCapacity)
	v.SetDefault("activity.idle_after", cfg.Activity.IdleAfter)
	v.SetDefault("activity.keywords.error", cfg.Activity.Keywords.Error)
	v.SetDefault("activity.keywords.success", cfg.Activity.Keywords.Success)
	v.SetDefault("activity.keywords.coding", cfg.Activity.Keywords.Coding)
	v.SetDefault("activity.keywords.idle", cfg.Activity.Keywords.Idle)

	v.SetDefault("commentary.enabled", cfg.Commentary.Enabled)
	v.SetDefault("commentary.base_interval", cfg.Commentary.BaseInterval)
	v.SetDefault("commentary.idle_multiplier", cfg.Commentary.IdleMultiplier)
	v.SetDefault("commentary.idle_sleep_threshold", cfg.Commentary.IdleSleepThreshold)
	v.SetDefault("commentary.checkin_idle_threshold", cfg.Commentary.CheckinIdleThreshold)
	v.SetDefault("commentary.quiet_period", cfg.Commentary.QuietPeriod)
	v.SetDefault("commentary.opportunistic_probability", cfg.Commentary.OpportunisticProbability)
	v.SetDefault("commentary.error_dwell", cfg.Commentary.ErrorDwell)
	v.SetDefault("commentary.react_to_activity", cfg.Commentary.ReactToActivity)

	v.SetDefault("mood.recompute_probability", cfg.Mood.RecomputeProbability)
	v.SetDefault("mood.table_file", cfg.Mood.TableFile)

	v.SetDefault("ratelimit.max_calls", cfg.RateLimit.MaxCalls)
	v.SetDefault("ratelimit.window", cfg.RateLimit.Window)

	v.SetDefault("ui.title", cfg.UI.Title)
	v.SetDefault("ui.frame_rate", cfg.UI.FrameRate)
	v.SetDefault("ui.min_sleep", cfg.UI.MinSleep)
	v.SetDefault("ui.headless", cfg.UI.Headless)
	v.SetDefault("ui.width", cfg.UI.Width)
	v.SetDefault("ui.height", cfg.UI.Height)

	v.SetDefault("screen.poll_interval", cfg.Screen.PollInterval)
	v.SetDefault("screen.screenshots", cfg.Screen.Screenshots)

	v.SetDefault("ai.provider", cfg.AI.Provider)
	v.SetDefault("ai.model", cfg.AI.Model)
	v.SetDefault("ai.api_key", cfg.AI.APIKey)
	v.SetDefault("ai.timeout", cfg.AI.Timeout)

	v.SetDefault("tts.provider", cfg.TTS.Provider)
	v.SetDefault("tts.voice", cfg.TTS.Voice)
	v.SetDefault("tts.rate", cfg.TTS.Rate)
	v.SetDefault("tts.piper_binary", cfg.TTS.PiperBinary)
	v.SetDefault("tts.piper_model", cfg.TTS.PiperModel)

	v.SetDefault("stt.enabled", cfg.STT.Enabled)
	v.SetDefault("stt.continuous", cfg.STT.Continuous)
	v.SetDefault("stt.api_key", cfg.STT.APIKey)
	v.SetDefault("stt.base_url", cfg.STT.BaseURL)
	v.SetDefault("stt.model", cfg.STT.Model)
	v.SetDefault("stt.language", cfg.STT.Language)
	v.SetDefault("stt.segment", cfg.STT.Segment)
	v.SetDefault("stt.phrase_limit", cfg.STT.PhraseLimit)
	v.SetDefault("stt.ask_timeout", cfg.STT.AskTimeout)
	v.SetDefault("stt.vad_threshold", cfg.STT.VADThreshold)
	v.SetDefault("stt.recorder", cfg.STT.Recorder)

	v.SetDefault("presence.addr", cfg.Presence.Addr)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("transcript.enabled", cfg.Transcript.Enabled)
	v.SetDefault("transcript.path", cfg.Transcript.Path)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.dir", cfg.Logging.Dir)
}

// LoadEnvFiles exports KEY=value pairs from ~/.pixie/.env without
// overriding variables that are already set. It returns the keys it set.
func LoadEnvFiles() []string {
	dir, err := GetConfigDir()
	if err != nil {
		return nil
	}
	return loadEnvFile(filepath.Join(dir, ".env"))
}

func loadEnvFile(path string) []string {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return nil
	}

	var loaded []string
	for _, key := range ev.AllKeys() {
		name := strings.ToUpper(key)
		if os.Getenv(name) != "" {
			continue
		}
		if err := os.Setenv(name, ev.GetString(key)); err == nil {
			loaded = append(loaded, name)
		}
	}
	return loaded
}
