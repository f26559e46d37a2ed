package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Task is a long-running cooperative task. It must return soon after ctx is
// cancelled.
type Task func(ctx context.Context) error

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as terminal for the whole group. Only fatal errors cancel
// the other tasks; any other task error is logged and ends that task alone.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// Group starts tasks together under a shared context. Cancelling that
// context is how every task is told to stop.
type Group struct {
	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// NewGroup derives the shared context from parent.
func NewGroup(parent context.Context, logger zerolog.Logger) (*Group, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	eg, egCtx := errgroup.WithContext(ctx)
	return &Group{
		eg:     eg,
		ctx:    egCtx,
		cancel: cancel,
		logger: logger.With().Str("component", "tasks").Logger(),
	}, egCtx
}

// Go starts a named task.
func (g *Group) Go(name string, task Task) {
	g.eg.Go(func() (err error) {
		log := g.logger.With().Str("task", name).Logger()
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("Task panicked")
				err = nil
			}
		}()

		log.Debug().Msg("Task started")
		err = task(g.ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			log.Debug().Dur("ran", time.Since(start)).Msg("Task stopped")
			return nil
		case IsFatal(err):
			log.Warn().Err(err).Msg("Task ended the run")
			return err
		default:
			log.Error().Err(err).Msg("Task failed")
			return nil
		}
	})
}

// Stop clears the running flag by cancelling the shared context.
func (g *Group) Stop() { g.cancel() }

// Context returns the shared context.
func (g *Group) Context() context.Context { return g.ctx }

// Wait blocks until every task has returned and returns the first fatal
// error, if any.
func (g *Group) Wait() error {
	err := g.eg.Wait()
	g.cancel()
	return err
}

// Sleep waits for d or until ctx is done. It reports false when ctx ended
// first, which is the signal for a task to return.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
