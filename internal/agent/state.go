package agent

import (
	"time"

	"github.com/normanking/pixie/internal/activity"
	"github.com/normanking/pixie/internal/config"
	"github.com/normanking/pixie/internal/ledger"
	"github.com/normanking/pixie/internal/mood"
	"github.com/normanking/pixie/internal/ratelimit"
)

// State is everything the agent mutates. It is owned by the scheduler
// goroutine: only jobs run by scheduler.Loop may read or write it.
type State struct {
	Ledger      *ledger.Ledger
	Tracker     *activity.Tracker
	Limiter     *ratelimit.Limiter
	Mood        mood.Mood
	LastComment time.Time
	Screen      string // latest context digest

	Commentary config.CommentaryConfig
	MoodChance float64 // probability of a mood change after speaking
	Table      *mood.Table
	TableFile  string
	Rand       mood.Source
}

// Snapshot is the read-only view handed to presentation sinks.
type Snapshot struct {
	Name        string          `json:"name"`
	Mood        mood.Mood       `json:"mood"`
	Activity    activity.Record `json:"activity"`
	IdleCount   int             `json:"idle_count"`
	Entries     []ledger.Entry  `json:"entries"`
	LastComment time.Time       `json:"last_comment"`
	Speaking    bool            `json:"speaking"`
	Listening   bool            `json:"listening"`
	Thinking    bool            `json:"thinking"`
}

func newState(cfg *config.Config, table *mood.Table, src mood.Source, now func() time.Time, sink ledger.Sink, onSinkErr func(error)) *State {
	opts := []ledger.Option{ledger.WithClock(now)}
	if sink != nil {
		opts = append(opts, ledger.WithSink(sink, onSinkErr))
	}
	return &State{
		Ledger:      ledger.New(cfg.Ledger.Capacity, opts...),
		Tracker:     activity.NewTracker(cfg.Activity.HistoryCapacity, cfg.Activity.Keywords),
		Limiter:     ratelimit.New(cfg.RateLimit.MaxCalls, cfg.RateLimit.Window, ratelimit.WithClock(now)),
		Mood:        mood.Helpful,
		LastComment: now(),
		Commentary:  cfg.Commentary,
		MoodChance:  cfg.Mood.RecomputeProbability,
		Table:       table,
		TableFile:   cfg.Mood.TableFile,
		Rand:        src,
	}
}

// view builds the presentation snapshot. Speaking, listening and thinking
// are filled in from the avatar when the snapshot is read.
func (s *State) view(name string) *Snapshot {
	return &Snapshot{
		Name:        name,
		Mood:        s.Mood,
		Activity:    s.Tracker.Current(),
		IdleCount:   s.Tracker.IdleCount(),
		Entries:     s.Ledger.Entries(),
		LastComment: s.LastComment,
	}
}
