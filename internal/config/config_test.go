package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50, cfg.Ledger.Capacity)
	assert.Equal(t, 20, cfg.Activity.HistoryCapacity)
	assert.Equal(t, 60*time.Second, cfg.Commentary.BaseInterval)
	assert.Equal(t, 2.0, cfg.Commentary.IdleMultiplier)
	assert.Equal(t, 5, cfg.Commentary.IdleSleepThreshold)
	assert.Equal(t, 3, cfg.Commentary.CheckinIdleThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Commentary.QuietPeriod)
	assert.Equal(t, 0.3, cfg.Commentary.OpportunisticProbability)
	assert.Equal(t, 60*time.Second, cfg.Commentary.ErrorDwell)
	assert.Equal(t, 0.4, cfg.Mood.RecomputeProbability)
	assert.Equal(t, 10, cfg.RateLimit.MaxCalls)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, time.Second/30, cfg.UI.FrameInterval())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ledger.Capacity = 0
	cfg.Mood.RecomputeProbability = 1.5
	cfg.UI.FrameRate = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.capacity")
	assert.Contains(t, err.Error(), "mood.recompute_probability")
	assert.Contains(t, err.Error(), "ui.frame_rate")
}

func TestSaveFileLoadFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Ledger.Capacity = 12
	cfg.Commentary.BaseInterval = 90 * time.Second
	cfg.Activity.Keywords.Coding = []string{"jupyter"}
	require.NoError(t, SaveFile(cfg, path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.Ledger.Capacity)
	assert.Equal(t, 90*time.Second, loaded.Commentary.BaseInterval)
	assert.Equal(t, []string{"jupyter"}, loaded.Activity.Keywords.Coding)
	assert.Equal(t, cfg.RateLimit, loaded.RateLimit)
}

func TestLoadFile_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ledger:\n  capacity: 7\nui:\n  frame_rate: 60\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Ledger.Capacity)
	assert.Equal(t, time.Second/60, cfg.UI.FrameInterval())
	assert.Equal(t, 20, cfg.Activity.HistoryCapacity)
}

func TestLoadFile_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ratelimit:\n  max_calls: 4\n"), 0o644))
	t.Setenv("PIXIE_RATELIMIT_MAX_CALLS", "3")
	t.Setenv("PIXIE_UI_HEADLESS", "true")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.RateLimit.MaxCalls)
	assert.True(t, cfg.UI.Headless)
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ledger:\n  capacity: -2\n"), 0o644))

	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "ledger.capacity")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFile_APIKeyFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  name: Pip\n"), 0o644))
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("GROQ_API_KEY", "q-key")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Pip", cfg.Agent.Name)
	assert.Equal(t, "g-key", cfg.AI.APIKey)
	assert.Equal(t, "q-key", cfg.STT.APIKey)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PIXIE_TEST_ALPHA=one\nPIXIE_TEST_BETA=two\n"), 0o644))
	t.Setenv("PIXIE_TEST_BETA", "preset")
	t.Setenv("PIXIE_TEST_ALPHA", "")

	loaded := loadEnvFile(path)
	assert.Equal(t, []string{"PIXIE_TEST_ALPHA"}, loaded)
	assert.Equal(t, "one", os.Getenv("PIXIE_TEST_ALPHA"))
	assert.Equal(t, "preset", os.Getenv("PIXIE_TEST_BETA"))

	assert.Nil(t, loadEnvFile(filepath.Join(t.TempDir(), "none.env")))
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveFile(DefaultConfig(), path))

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { got <- c }, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// unrelated files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("commentary:\n  opportunistic_probability: 0.1\n"), 0o644))

	select {
	case cfg := <-got:
		assert.Equal(t, 0.1, cfg.Commentary.OpportunisticProbability)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestMarshal_MasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.APIKey = "AIzaSyExampleKey1234"
	cfg.STT.APIKey = "short"

	out, err := Marshal(cfg)
	require.NoError(t, err)
	s := string(out)
	assert.NotContains(t, s, "AIzaSyExampleKey1234")
	assert.Contains(t, s, "AIza****1234")
	assert.NotContains(t, s, "short")
	assert.Contains(t, s, "base_interval")
	assert.Equal(t, "AIzaSyExampleKey1234", cfg.AI.APIKey)
}
