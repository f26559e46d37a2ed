package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/normanking/pixie/internal/activity"
	"github.com/normanking/pixie/internal/config"
	"github.com/normanking/pixie/internal/metrics"
	"github.com/normanking/pixie/internal/mood"
	"github.com/normanking/pixie/internal/scheduler"
	"github.com/normanking/pixie/internal/vision"
)

// Trigger names why the pet decided to speak unprompted.
type Trigger string

const (
	TriggerNone          Trigger = ""
	TriggerSympathy      Trigger = "sympathy"
	TriggerCheckin       Trigger = "checkin"
	TriggerOpportunistic Trigger = "opportunistic"
)

// View is what the commentary decision looks at.
type View struct {
	Now         time.Time
	LastComment time.Time
	IdleCount   int
	Category    activity.Category
	Dwell       time.Duration // time spent in Category
}

// NextSleep returns how long the commentary task sleeps before its next
// evaluation. The base interval is stretched for a user who has been idle
// for a while.
func NextSleep(idleCount int, cfg config.CommentaryConfig) time.Duration {
	d := cfg.BaseInterval
	if idleCount > cfg.IdleSleepThreshold {
		d = time.Duration(float64(d) * cfg.IdleMultiplier)
	}
	return d
}

// Decide picks the trigger for one evaluation, or TriggerNone. Sympathy for
// a lingering error wins over an idle check-in, which wins over an
// opportunistic remark. draw is only called once the quiet period has
// passed and no other trigger applies.
func Decide(v View, cfg config.CommentaryConfig, draw func() float64) Trigger {
	if !cfg.Enabled {
		return TriggerNone
	}
	quiet := v.Now.Sub(v.LastComment) > cfg.QuietPeriod

	switch {
	case v.Category == activity.Error && v.Dwell > cfg.ErrorDwell:
		return TriggerSympathy
	case quiet && v.IdleCount > cfg.CheckinIdleThreshold:
		return TriggerCheckin
	case quiet && draw() < cfg.OpportunisticProbability:
		return TriggerOpportunistic
	}
	return TriggerNone
}

// runCommentary is the Sleeping → Evaluating → Speaking task.
func (a *Agent) runCommentary(ctx context.Context) error {
	for {
		var sleep time.Duration
		if err := a.loop.Do(ctx, func() {
			sleep = NextSleep(a.state.Tracker.IdleCount(), a.state.Commentary)
		}); err != nil {
			return a.stopErr(ctx, err)
		}
		if !scheduler.Sleep(ctx, sleep) {
			return ctx.Err()
		}

		trigger, err := a.commentOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			a.logger.Warn().Err(err).Str("trigger", string(trigger)).Msg("Spontaneous comment failed")
		case trigger != TriggerNone:
			a.logger.Debug().Str("trigger", string(trigger)).Msg("Commentary evaluated")
		}
	}
}

// commentOnce runs one evaluation and, if it triggers, one comment. A
// failed or skipped comment leaves the last comment time alone.
func (a *Agent) commentOnce(ctx context.Context) (trigger Trigger, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("Commentary cycle panicked")
			err = fmt.Errorf("commentary cycle panicked: %v", r)
		}
	}()

	var (
		m      mood.Mood
		screen string
	)
	err = a.loop.Do(ctx, func() {
		s := a.state
		now := a.now()
		trigger = Decide(View{
			Now:         now,
			LastComment: s.LastComment,
			IdleCount:   s.Tracker.IdleCount(),
			Category:    s.Tracker.Current().Category,
			Dwell:       s.Tracker.Dwell(now),
		}, s.Commentary, s.Rand.Float64)
		if trigger == TriggerNone {
			return
		}
		if !a.collab.Available() || !a.admit() {
			trigger = TriggerNone
			return
		}

		switch trigger {
		case TriggerSympathy:
			a.setMood(mood.Encouraging)
		case TriggerCheckin:
			a.setMood(s.Table.Choose(activity.Idle, s.Rand))
		}
		m, screen = s.Mood, s.Screen
	})
	if err != nil || trigger == TriggerNone {
		return trigger, err
	}

	shot := a.screenshot(ctx)
	reply, err := a.think(ctx, func(ctx context.Context) (string, error) {
		return a.collab.SpontaneousComment(ctx, shot, screen, m)
	})
	if err != nil {
		return trigger, fmt.Errorf("%s comment: %w", trigger, err)
	}
	if reply == "" {
		return trigger, nil
	}

	metrics.Comments.WithLabelValues(string(trigger)).Inc()
	return trigger, a.petSpoke(ctx, reply, true)
}

func (a *Agent) screenshot(ctx context.Context) *vision.Frame {
	if !a.cfg.Screen.Screenshots || a.shots == nil || !a.shots.Available() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	shot, err := a.shots.Capture(ctx)
	if err != nil {
		a.logger.Debug().Err(err).Msg("Screenshot failed, commenting without it")
		return nil
	}
	return shot
}
