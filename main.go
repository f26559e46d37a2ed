// Pixie - a desktop companion that watches, comments and chats
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/pixie/internal/agent"
	"github.com/normanking/pixie/internal/audio"
	"github.com/normanking/pixie/internal/bridge"
	"github.com/normanking/pixie/internal/bus"
	"github.com/normanking/pixie/internal/companion"
	"github.com/normanking/pixie/internal/config"
	"github.com/normanking/pixie/internal/logging"
	"github.com/normanking/pixie/internal/presence"
	"github.com/normanking/pixie/internal/stt"
	"github.com/normanking/pixie/internal/transcript"
	"github.com/normanking/pixie/internal/tts"
	"github.com/normanking/pixie/internal/ui"
	"github.com/normanking/pixie/internal/vision"
)

var version = "dev"

var (
	cfgFile  string
	headless bool
	force    bool
)

var rootCmd = &cobra.Command{
	Use:   "pixie",
	Short: "Pixie - a desktop pet that keeps you company",
	Long: `Pixie is a small desktop companion. It watches which window you are
working in, comments now and then, and chats by text or voice.

Configuration:
  1. --config flag (explicit path)
  2. $HOME/.pixie/config.yaml
  3. ./config.yaml (current directory)

Environment Variables:
  PIXIE_AI_API_KEY    - Gemini API key
  PIXIE_STT_API_KEY   - Whisper-compatible transcription key
  PIXIE_LOGGING_LEVEL - Log level (debug, info, warn, error)`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runPet,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the pet",
	RunE:  runPet,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnvFiles()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.SaveFile(config.DefaultConfig(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pixie %s\n", version)
	},
}

func init() {
	// The window and its GL context must stay on the main thread.
	runtime.LockOSThread()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pixie/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", false, "run without a window")
	configInitCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(runCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	dir, err := config.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func runPet(cmd *cobra.Command, args []string) error {
	loaded := config.LoadEnvFiles()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if headless {
		cfg.UI.Headless = true
	}

	logs, err := logging.New(&logging.Config{
		Dir:        cfg.Logging.Dir,
		Level:      cfg.Logging.Level,
		MaxHistory: 500,
		Console:    os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logs.Close()
	logger := logs.Component("main")
	logger.Info().
		Str("version", version).
		Strs("env_files", loaded).
		Str("log_file", logs.Path()).
		Msg("Pixie starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := agent.Deps{
		Collaborator:  newCollaborator(ctx, cfg, logs),
		Engine:        tts.Select(cfg.TTS.Provider, ttsOptions(cfg), logs.Component("tts")),
		Probe:         vision.NewProbe(),
		Screenshotter: vision.NewScreenshotter(),
		Bus:           bus.NewEventBus(),
		Logs:          logs,
		ConfigPath:    watchPath(),
		Logger:        logs.Zerolog(),
	}
	if cfg.STT.Enabled {
		vad := audio.DefaultVADConfig()
		vad.Threshold = cfg.STT.VADThreshold
		deps.Capturer = audio.NewCapturer(audio.SelectSource(cfg.STT.Recorder), vad, logs.Zerolog())
		deps.Transcriber = stt.NewWhisper(stt.WhisperConfig{
			APIKey:   cfg.STT.APIKey,
			BaseURL:  cfg.STT.BaseURL,
			Model:    cfg.STT.Model,
			Language: cfg.STT.Language,
		}, logs.Zerolog())
	}
	if cfg.Transcript.Enabled {
		store, err := transcript.Open(cfg.Transcript.Path, cfg.Agent.Name)
		if err != nil {
			logger.Warn().Err(err).Msg("Transcript unavailable, conversations will not be archived")
		} else {
			defer store.Close()
			deps.Transcript = store
			logger.Info().Str("path", cfg.Transcript.Path).Str("session", store.Session()).Msg("Transcript opened")
		}
	}

	pet, err := agent.New(cfg, deps)
	if err != nil {
		return err
	}

	if cfg.Presence.Addr != "" {
		opts := []presence.Option{
			presence.WithChat(pet.Say),
			presence.WithAsk(func(ctx context.Context, _ string) (string, error) { return pet.Ask(ctx) }),
			presence.WithAnalyze(pet.Analyze),
			presence.WithSnapshot(func() any { return pet.Snapshot() }),
		}
		if cfg.Metrics.Enabled {
			opts = append(opts, presence.WithMetrics())
		}
		hub := presence.NewHub(cfg.Presence.Addr, logs.Component("presence"), opts...)
		detach := hub.Attach(pet.Bus())
		defer detach()
		hub.ForwardLogs(logs)
		pet.AddTask("presence", hub.Run)
	}

	surface := newSurface(cfg, pet, logger)
	if c, ok := surface.(interface{ Close() }); ok {
		defer c.Close()
	}
	if err := pet.Run(ctx, surface); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Pixie stopped with an error")
		return err
	}
	logger.Info().Msg("Pixie stopped")
	return nil
}

func newCollaborator(ctx context.Context, cfg *config.Config, logs *logging.Logger) companion.Collaborator {
	logger := logs.Component("companion")
	var gen companion.Generator
	if cfg.AI.Provider == "gemini" {
		g, err := companion.NewGemini(ctx, companion.GeminiConfig{
			APIKey: cfg.AI.APIKey,
			Model:  cfg.AI.Model,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Gemini unavailable")
		} else {
			gen = g
		}
	}
	return companion.New(gen, cfg.Agent.Name, cfg.AI.Timeout, logger)
}

func ttsOptions(cfg *config.Config) tts.Options {
	return tts.Options{
		Voice:       cfg.TTS.Voice,
		Rate:        cfg.TTS.Rate,
		PiperBinary: cfg.TTS.PiperBinary,
		PiperModel:  cfg.TTS.PiperModel,
	}
}

// watchPath is the file hot-reloaded for tunables, or empty if none exists.
func watchPath() string {
	path, err := configPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func newSurface(cfg *config.Config, pet *agent.Agent, logger zerolog.Logger) bridge.Surface {
	if cfg.UI.Headless {
		return ui.NewHeadless(pet.Avatar().State)
	}
	w, err := ui.NewWindow(ui.Config{
		Width:  cfg.UI.Width,
		Height: cfg.UI.Height,
		Title:  cfg.UI.Title,
	}, pet.Avatar().State, pet.Poke)
	if err != nil {
		logger.Warn().Err(err).Msg("No window available, running headless")
		return ui.NewHeadless(pet.Avatar().State)
	}
	return w
}
