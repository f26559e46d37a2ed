// Package agent is Pixie's orchestration core. It owns the agent state on a
// single scheduler goroutine and runs the cooperative tasks around it: the
// UI pump, the context poller, the commentary scheduler and the speech
// drainer.
package agent

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/pixie/internal/activity"
	"github.com/normanking/pixie/internal/avatar"
	"github.com/normanking/pixie/internal/bridge"
	"github.com/normanking/pixie/internal/bus"
	"github.com/normanking/pixie/internal/companion"
	"github.com/normanking/pixie/internal/config"
	"github.com/normanking/pixie/internal/ledger"
	"github.com/normanking/pixie/internal/logging"
	"github.com/normanking/pixie/internal/metrics"
	"github.com/normanking/pixie/internal/mood"
	"github.com/normanking/pixie/internal/scheduler"
	"github.com/normanking/pixie/internal/stt"
	"github.com/normanking/pixie/internal/tts"
	"github.com/normanking/pixie/internal/vision"
)

var (
	// ErrEmptyMessage is returned by Say for blank input.
	ErrEmptyMessage = errors.New("empty message")
	// ErrNothingHeard is returned by Ask when no question was understood.
	ErrNothingHeard = errors.New("nothing heard")
)

const (
	heardQueueSize = 64
	busyReply      = "I need a moment to catch my breath! Ask me again in a few seconds. 🐾"
	notHeardReply  = "I didn't quite catch that. Could you try again? 🐾"
)

// Deps are the collaborators the agent drives. Nil fields disable the
// matching feature for the run.
type Deps struct {
	Collaborator  companion.Collaborator
	Engine        tts.Engine
	Capturer      bridge.Capturer
	Transcriber   stt.Transcriber
	Probe         vision.WindowProbe
	Screenshotter vision.Screenshotter
	Transcript    ledger.Sink
	Bus           *bus.EventBus
	Logs          *logging.Logger // for log level hot-reload
	ConfigPath    string          // watched for tunable changes when set
	Rand          mood.Source
	Clock         func() time.Time
	Logger        zerolog.Logger
}

type namedTask struct {
	name string
	task scheduler.Task
}

// Agent is the running pet.
type Agent struct {
	cfg    *config.Config
	loop   *scheduler.Loop
	state  *State
	snap   atomic.Pointer[Snapshot]
	avatar *avatar.Controller
	bus    *bus.EventBus
	logs   *logging.Logger
	logger zerolog.Logger

	collab companion.Collaborator
	voice  *bridge.Voice
	ears   *bridge.Ears
	probe  vision.WindowProbe
	shots  vision.Screenshotter

	heard   chan stt.Utterance
	pokes   chan struct{}
	extra   []namedTask
	cfgPath string
	now     func() time.Time
}

// New builds the agent and its state. Nothing runs until Run.
func New(cfg *config.Config, deps Deps) (*Agent, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger

	table := mood.Default()
	if cfg.Mood.TableFile != "" {
		t, err := mood.Load(cfg.Mood.TableFile)
		if err != nil {
			return nil, err
		}
		table = t
	}
	src := deps.Rand
	if src == nil {
		src = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	b := deps.Bus
	if b == nil {
		b = bus.NewEventBus()
	}
	collab := deps.Collaborator
	if collab == nil {
		collab = companion.New(nil, cfg.Agent.Name, cfg.AI.Timeout, logger)
	}

	a := &Agent{
		cfg:     cfg,
		loop:    scheduler.New(scheduler.DefaultMailboxSize, logger),
		avatar:  avatar.NewController(),
		bus:     b,
		logs:    deps.Logs,
		logger:  logger.With().Str("component", "agent").Logger(),
		collab:  collab,
		probe:   deps.Probe,
		shots:   deps.Screenshotter,
		heard:   make(chan stt.Utterance, heardQueueSize),
		pokes:   make(chan struct{}, 1),
		cfgPath: deps.ConfigPath,
		now:     now,
	}
	a.state = newState(cfg, table, src, now, deps.Transcript, func(err error) {
		a.logger.Warn().Err(err).Msg("Transcript write failed")
	})
	a.voice = bridge.NewVoice(deps.Engine, logger, bridge.WithSpeakingHook(a.onSpeaking))
	a.ears = bridge.NewEars(deps.Capturer, deps.Transcriber, bridge.EarsConfig{
		Name:        cfg.Agent.Name,
		Segment:     cfg.STT.Segment,
		PhraseLimit: cfg.STT.PhraseLimit,
	}, a.hear, logger)

	if !a.collab.Available() {
		a.logger.Warn().Msg("AI collaborator unavailable, the pet will stay quiet")
	}
	metrics.SetMood(string(mood.Helpful), moodNames())
	a.snap.Store(a.state.view(cfg.Agent.Name))
	return a, nil
}

func moodNames() []string {
	out := make([]string, len(mood.All))
	for i, m := range mood.All {
		out[i] = string(m)
	}
	return out
}

// AddTask registers an extra long-running task (presence hub, metrics
// server) that starts and stops with the agent. Call before Run.
func (a *Agent) AddTask(name string, task scheduler.Task) {
	a.extra = append(a.extra, namedTask{name: name, task: task})
}

// Avatar returns the presentation state controller.
func (a *Agent) Avatar() *avatar.Controller { return a.avatar }

// Bus returns the event bus presentation sinks subscribe to.
func (a *Agent) Bus() *bus.EventBus { return a.bus }

// Snapshot returns the latest presentation snapshot. Safe from any
// goroutine.
func (a *Agent) Snapshot() Snapshot {
	s := *a.snap.Load()
	av := a.avatar.State()
	s.Speaking, s.Listening, s.Thinking = av.IsSpeaking, av.IsListening, av.IsThinking
	return s
}

// Run starts every task and pumps surface on the calling goroutine until
// the surface closes or ctx is cancelled. A nil surface runs without a UI.
// Shutdown stops speech input, then speech output, then waits for tasks.
func (a *Agent) Run(ctx context.Context, surface bridge.Surface) error {
	group, gctx := scheduler.NewGroup(ctx, a.logger)
	group.Go("scheduler", a.loop.Run)
	group.Go("avatar", a.avatar.Run)
	group.Go("poller", a.runPoller)
	group.Go("commentary", a.runCommentary)
	group.Go("speech", a.runDrainer)
	group.Go("pokes", a.runPokes)
	if a.cfgPath != "" {
		group.Go("config", a.runWatcher)
	}
	for _, t := range a.extra {
		group.Go(t.name, t.task)
	}

	if a.cfg.STT.Enabled && a.cfg.STT.Continuous && a.ears.IsAvailable() {
		if err := a.ears.StartListening(); err != nil {
			a.logger.Warn().Err(err).Msg("Continuous listening not started")
		}
	}
	a.logger.Info().Str("name", a.cfg.Agent.Name).Bool("ai", a.collab.Available()).
		Bool("voice", a.voice.IsAvailable()).Bool("ears", a.ears.IsAvailable()).
		Msg("Agent started")

	var runErr error
	if surface != nil {
		loop := bridge.NewEventLoop(surface, a.cfg.UI.FrameInterval(), a.cfg.UI.MinSleep, a.logger)
		runErr = loop.Run(gctx)
		if errors.Is(runErr, bridge.ErrUIClosed) {
			a.logger.Info().Msg("Pet window closed, shutting down")
			a.bus.Publish(bus.Event{Type: bus.EventTypeUIClosed})
			runErr = nil
		}
	} else {
		<-gctx.Done()
	}

	group.Stop()
	a.ears.StopListening()
	a.voice.Close()
	waitErr := group.Wait()
	a.ears.Close()
	a.bus.PublishSync(bus.Event{Type: bus.EventTypeShutdown})
	a.logger.Info().Msg("Agent stopped")

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return errors.Join(runErr, waitErr)
}

// Poke asks the pet to listen for one question, as when the user clicks it.
// It never blocks.
func (a *Agent) Poke() {
	select {
	case a.pokes <- struct{}{}:
	default:
	}
}

func (a *Agent) runPokes(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.pokes:
			if _, err := a.Ask(ctx); err != nil && ctx.Err() == nil {
				a.logger.Debug().Err(err).Msg("Ask ended without a question")
			}
		}
	}
}

// Say handles a message the user typed in the chat panel and returns the
// pet's reply. Collaborator failures become an apology reply, not an error.
func (a *Agent) Say(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	return a.converse(ctx, text)
}

// Ask listens for one spoken question and answers it. Continuous listening
// is paused while the microphone is taken.
func (a *Agent) Ask(ctx context.Context) (string, error) {
	if !a.ears.IsAvailable() {
		return "", bridge.ErrSpeechInputUnavailable
	}
	if a.ears.Listening() {
		a.ears.StopListening()
		defer func() {
			if ctx.Err() != nil {
				return
			}
			if err := a.ears.StartListening(); err != nil {
				a.logger.Warn().Err(err).Msg("Continuous listening not resumed")
			}
		}()
	}

	a.setListening(true)
	text, ok := a.ears.ListenOnce(ctx, a.cfg.STT.AskTimeout)
	a.setListening(false)
	if !ok {
		a.voice.Speak(notHeardReply)
		return "", ErrNothingHeard
	}

	var allowed bool
	if err := a.loop.Do(ctx, func() {
		a.state.Ledger.Append(ledger.SpeakerUser, text)
		allowed = a.collab.Available() && a.admit()
		a.publish()
	}); err != nil {
		return "", err
	}
	a.bus.Publish(bus.Event{Type: bus.EventTypeHeard, Data: map[string]any{"text": text, "source": "ask"}})

	reply := busyReply
	if allowed {
		var err error
		reply, err = a.think(ctx, func(ctx context.Context) (string, error) {
			return a.collab.ChatResponse(ctx, text)
		})
		if err != nil {
			a.logger.Warn().Err(err).Msg("Chat response failed")
			reply = companion.Fallback(err)
		}
	} else if !a.collab.Available() {
		reply = companion.Fallback(companion.ErrUnavailable)
	}
	return reply, a.petSpoke(ctx, reply, false)
}

// Analyze looks at the screen and answers question about it, or offers
// help when question is empty. Without a screenshot nothing is sent to the
// collaborator and no rate budget is spent.
func (a *Agent) Analyze(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	shot := a.screenshot(ctx)

	var (
		screen  string
		allowed bool
	)
	if err := a.loop.Do(ctx, func() {
		if question != "" {
			a.state.Ledger.Append(ledger.SpeakerUser, question)
		}
		screen = a.state.Screen
		allowed = shot != nil && a.collab.Available() && a.admit()
		a.publish()
	}); err != nil {
		return "", err
	}
	if question != "" {
		a.bus.Publish(bus.Event{Type: bus.EventTypeHeard, Data: map[string]any{"text": question, "source": "analyze"}})
	}

	var reply string
	switch {
	case shot == nil:
		reply = companion.ScreenFallback(companion.ErrNoScreenshot)
	case !a.collab.Available():
		reply = companion.Fallback(companion.ErrUnavailable)
	case !allowed:
		reply = busyReply
	default:
		var err error
		reply, err = a.think(ctx, func(ctx context.Context) (string, error) {
			return a.collab.AnalyzeScreen(ctx, shot, question, screen)
		})
		if err != nil {
			a.logger.Warn().Err(err).Msg("Screen analysis failed")
			reply = companion.ScreenFallback(err)
		}
	}
	return reply, a.petSpoke(ctx, reply, false)
}

// hear is the Ears sink. It runs on decode goroutines and only enqueues.
func (a *Agent) hear(u stt.Utterance) {
	select {
	case a.heard <- u:
	default:
		a.logger.Warn().Str("text", u.Text).Msg("Speech queue full, dropping utterance")
	}
}

// runDrainer moves heard utterances onto the scheduler.
func (a *Agent) runDrainer(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-a.heard:
			if _, err := a.converse(ctx, u.Text); err != nil {
				if errors.Is(err, scheduler.ErrStopped) || ctx.Err() != nil {
					return a.stopErr(ctx, err)
				}
				a.logger.Warn().Err(err).Msg("Heard utterance not handled")
			}
		}
	}
}

// converse appends the user's message, gets an in-character reply with the
// recent history and screen as context, and speaks it.
func (a *Agent) converse(ctx context.Context, text string) (string, error) {
	var (
		history []ledger.Entry
		screen  string
		traits  []string
		allowed bool
	)
	if err := a.loop.Do(ctx, func() {
		s := a.state
		history = s.Ledger.Last(companion.HistoryLimit)
		s.Ledger.Append(ledger.SpeakerUser, text)
		screen, traits = s.Screen, s.Mood.Traits()
		allowed = a.collab.Available() && a.admit()
		a.publish()
	}); err != nil {
		return "", err
	}
	a.bus.Publish(bus.Event{Type: bus.EventTypeHeard, Data: map[string]any{"text": text}})

	var reply string
	switch {
	case allowed:
		var err error
		reply, err = a.think(ctx, func(ctx context.Context) (string, error) {
			return a.collab.ConversationalResponse(ctx, text, history, screen, traits)
		})
		if err != nil {
			a.logger.Warn().Err(err).Msg("Conversational response failed")
			reply = companion.Fallback(err)
		}
	case !a.collab.Available():
		reply = companion.Fallback(companion.ErrUnavailable)
	default:
		reply = busyReply
	}
	return reply, a.petSpoke(ctx, reply, false)
}

// runPoller feeds active-window changes into the activity tracker.
func (a *Agent) runPoller(ctx context.Context) error {
	monitor := vision.NewMonitor(a.probe, a.logger,
		vision.WithStillness(a.cfg.Activity.IdleAfter, func(info vision.WindowInfo, still time.Duration) {
			a.observeLogged(ctx, vision.IdleDigest(info, still))
		}),
	)
	if !monitor.Available() {
		a.logger.Warn().Msg("No active-window probe, activity tracking disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	return monitor.Start(ctx, func(info vision.WindowInfo) {
		a.observeLogged(ctx, vision.Digest(info))
	}, a.cfg.Screen.PollInterval)
}

func (a *Agent) observeLogged(ctx context.Context, digest string) {
	if err := a.Observe(ctx, digest); err != nil && ctx.Err() == nil {
		a.logger.Warn().Err(err).Msg("Context update failed")
	}
}

// Observe classifies a context digest. Entering the error or success
// category gets a short reaction when the collaborator is up and the rate
// limiter admits it.
func (a *Agent) Observe(ctx context.Context, digest string) error {
	var (
		rec   activity.Record
		react bool
	)
	if err := a.loop.Do(ctx, func() {
		s := a.state
		r, changed := s.Tracker.Observe(digest, a.now())
		s.Screen = r.Digest
		rec = r
		metrics.IdleCount.Set(float64(s.Tracker.IdleCount()))
		if changed {
			metrics.ActivityTransitions.WithLabelValues(string(r.Category)).Inc()
			a.avatar.SetActivity(r.Category)
			a.bus.Publish(bus.Event{Type: bus.EventTypeActivityChanged, Data: map[string]any{
				"category": string(r.Category),
				"digest":   r.Digest,
			}})
			react = (r.Category == activity.Error || r.Category == activity.Success) &&
				s.Commentary.ReactToActivity && a.collab.Available() && a.admit()
		}
		a.publish()
	}); err != nil {
		return err
	}
	if !react {
		return nil
	}

	reply, err := a.think(ctx, func(ctx context.Context) (string, error) {
		return a.collab.ReactToActivity(ctx, rec.Category, rec.Digest)
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("category", string(rec.Category)).Msg("Activity reaction failed")
		return nil
	}
	if reply == "" {
		return nil
	}
	metrics.Comments.WithLabelValues("reaction").Inc()
	return a.petSpoke(ctx, reply, true)
}

// petSpoke records and voices a reply. A comment also moves the last
// comment time. Afterwards the mood may drift.
func (a *Agent) petSpoke(ctx context.Context, text string, comment bool) error {
	if err := a.loop.Do(ctx, func() {
		s := a.state
		s.Ledger.Append(ledger.SpeakerPet, text)
		if comment {
			s.LastComment = a.now()
		}
		if s.Rand.Float64() < s.MoodChance {
			a.setMood(s.Table.Choose(s.Tracker.Current().Category, s.Rand))
		}
		metrics.LedgerEntries.Set(float64(s.Ledger.Len()))
		a.publish()
	}); err != nil {
		return err
	}
	a.bus.Publish(bus.Event{Type: bus.EventTypeSpoke, Data: map[string]any{"text": text}})
	a.voice.Speak(text)
	return nil
}

// Reload applies tunables from a reloaded config on the scheduler.
func (a *Agent) Reload(ctx context.Context, cfg *config.Config) error {
	var table *mood.Table
	if cfg.Mood.TableFile != "" {
		t, err := mood.Load(cfg.Mood.TableFile)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Mood table not reloaded")
		} else {
			table = t
		}
	}
	if a.logs != nil && cfg.Logging.Level != "" {
		if err := a.logs.SetLevel(cfg.Logging.Level); err != nil {
			a.logger.Warn().Err(err).Msg("Log level not changed")
		}
	}

	return a.loop.Do(ctx, func() {
		s := a.state
		s.Commentary = cfg.Commentary
		s.MoodChance = cfg.Mood.RecomputeProbability
		s.Tracker.SetKeywords(cfg.Activity.Keywords)
		s.Limiter.Resize(cfg.RateLimit.MaxCalls, cfg.RateLimit.Window)
		switch {
		case table != nil:
			s.Table, s.TableFile = table, cfg.Mood.TableFile
		case cfg.Mood.TableFile == "" && s.TableFile != "":
			s.Table, s.TableFile = mood.Default(), ""
		}
		a.logger.Info().Dur("base_interval", s.Commentary.BaseInterval).
			Int("max_calls", cfg.RateLimit.MaxCalls).Msg("Tunables reloaded")
	})
}

func (a *Agent) runWatcher(ctx context.Context) error {
	w, err := config.NewWatcher(a.cfgPath, func(cfg *config.Config) {
		if err := a.Reload(ctx, cfg); err != nil && ctx.Err() == nil {
			a.logger.Warn().Err(err).Msg("Reload failed")
		}
	}, a.logger)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// admit must run on the scheduler.
func (a *Agent) admit() bool {
	if a.state.Limiter.Allow() {
		return true
	}
	metrics.RateLimited.Inc()
	a.logger.Debug().Dur("retry_in", a.state.Limiter.TimeUntilNext()).Msg("AI call rate limited")
	return false
}

// setMood must run on the scheduler.
func (a *Agent) setMood(m mood.Mood) {
	if a.state.Mood == m {
		return
	}
	a.state.Mood = m
	a.avatar.SetMood(m)
	metrics.SetMood(string(m), moodNames())
	a.bus.Publish(bus.Event{Type: bus.EventTypeMoodChanged, Data: map[string]any{"mood": string(m)}})
}

// publish must run on the scheduler.
func (a *Agent) publish() {
	a.snap.Store(a.state.view(a.cfg.Agent.Name))
}

// think runs a collaborator call off the scheduler with the thinking flag
// raised.
func (a *Agent) think(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
	a.avatar.SetThinking(true)
	a.bus.Publish(bus.Event{Type: bus.EventTypeThinkingStarted})
	defer func() {
		a.avatar.SetThinking(false)
		a.bus.Publish(bus.Event{Type: bus.EventTypeThinkingStopped})
	}()
	return call(ctx)
}

func (a *Agent) onSpeaking(on bool) {
	a.avatar.SetSpeaking(on)
	t := bus.EventTypeSpeakingStopped
	if on {
		t = bus.EventTypeSpeakingStarted
	}
	a.bus.Publish(bus.Event{Type: t})
}

func (a *Agent) setListening(on bool) {
	a.avatar.SetListening(on)
	t := bus.EventTypeListeningStopped
	if on {
		t = bus.EventTypeListeningStarted
	}
	a.bus.Publish(bus.Event{Type: t})
}

// stopErr maps a scheduler error seen during shutdown to the context error.
func (a *Agent) stopErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, scheduler.ErrStopped) {
		return ctx.Err()
	}
	return err
}
