// Package scheduler provides the single goroutine that owns the agent's
// mutable state, plus supervision for the long-running tasks around it.
//
// State is never locked. Every read or write of agent state is a job run on
// the Loop goroutine, so mutations are serialized in mailbox order. Worker
// goroutines that block on audio, network or disk hand their results over
// with Post or Do and never touch state directly.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultMailboxSize is the mailbox capacity used when none is given.
const DefaultMailboxSize = 64

var (
	// ErrStopped is returned when the loop is not running any more.
	ErrStopped = errors.New("scheduler stopped")
	// ErrJobPanicked is returned by Do when the job panicked.
	ErrJobPanicked = errors.New("scheduler job panicked")
)

// Loop runs jobs one at a time on a single goroutine.
type Loop struct {
	mailbox chan func()
	done    chan struct{}
	running atomic.Bool
	jobs    atomic.Uint64
	logger  zerolog.Logger
}

// New creates a loop with a bounded mailbox.
func New(size int, logger zerolog.Logger) *Loop {
	if size <= 0 {
		size = DefaultMailboxSize
	}
	return &Loop{
		mailbox: make(chan func(), size),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run executes jobs until ctx is cancelled. It must be called once.
// Jobs still queued when ctx ends are dropped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("scheduler: Run called twice")
	}
	defer close(l.done)
	defer l.running.Store(false)

	l.logger.Debug().Int("mailbox", cap(l.mailbox)).Msg("Scheduler loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug().Uint64("jobs", l.jobs.Load()).Msg("Scheduler loop stopped")
			return nil
		case job := <-l.mailbox:
			l.exec(job)
		}
	}
}

func (l *Loop) exec(job func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("Scheduler job panicked")
		}
	}()
	l.jobs.Add(1)
	job()
}

// Post enqueues fn without waiting for it to run. It blocks while the
// mailbox is full. Post is safe to call from a job.
func (l *Loop) Post(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.mailbox <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop and waits for it to finish. Calling Do from inside
// a job deadlocks; use Post there.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	var panicked atomic.Bool

	job := func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				panicked.Store(true)
				panic(r)
			}
		}()
		fn()
	}
	if err := l.Post(ctx, job); err != nil {
		return err
	}

	select {
	case <-finished:
		if panicked.Load() {
			return ErrJobPanicked
		}
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether Run is active.
func (l *Loop) Running() bool { return l.running.Load() }

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Jobs returns the number of jobs executed so far.
func (l *Loop) Jobs() uint64 { return l.jobs.Load() }
