package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(8, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestLoop_SerializesConcurrentWriters(t *testing.T) {
	l, _ := startLoop(t)

	// plain int, no lock: only the loop goroutine touches it
	counter := 0
	var entries []int

	const writers = 50
	const perWriter = 40
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, l.Do(context.Background(), func() {
					counter++
					entries = append(entries, w)
				}))
			}
		}(w)
	}
	wg.Wait()

	var got, n int
	require.NoError(t, l.Do(context.Background(), func() {
		got = counter
		n = len(entries)
	}))
	assert.Equal(t, writers*perWriter, got)
	assert.Equal(t, writers*perWriter, n)
}

func TestLoop_PostPreservesOrder(t *testing.T) {
	l, _ := startLoop(t)

	var seen []int
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, l.Post(context.Background(), func() { seen = append(seen, i) }))
	}
	var snapshot []int
	require.NoError(t, l.Do(context.Background(), func() { snapshot = append([]int(nil), seen...) }))

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, snapshot)
}

func TestLoop_PanicDoesNotStopLoop(t *testing.T) {
	l, _ := startLoop(t)

	err := l.Do(context.Background(), func() { panic("boom") })
	assert.ErrorIs(t, err, ErrJobPanicked)

	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_StoppedRejectsJobs(t *testing.T) {
	l := New(1, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()

	require.Eventually(t, l.Running, time.Second, time.Millisecond)
	cancel()
	<-l.Done()

	assert.False(t, l.Running())
	assert.ErrorIs(t, l.Post(context.Background(), func() {}), ErrStopped)
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrStopped)
}

func TestLoop_DoHonoursCallerContext(t *testing.T) {
	l, _ := startLoop(t)

	block := make(chan struct{})
	require.NoError(t, l.Post(context.Background(), func() { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}

func TestGroup_CancelStopsAllTasks(t *testing.T) {
	g, _ := NewGroup(context.Background(), zerolog.Nop())

	var stopped atomic.Int32
	for i := 0; i < 3; i++ {
		g.Go("sleeper", func(ctx context.Context) error {
			for Sleep(ctx, 5*time.Millisecond) {
			}
			stopped.Add(1)
			return ctx.Err()
		})
	}

	time.Sleep(20 * time.Millisecond)
	g.Stop()
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(3), stopped.Load())
}

func TestGroup_NonFatalErrorIsIsolated(t *testing.T) {
	g, ctx := NewGroup(context.Background(), zerolog.Nop())

	g.Go("flaky", func(context.Context) error { return errors.New("transient") })
	g.Go("panicky", func(context.Context) error { panic("oops") })

	survivor := make(chan struct{})
	g.Go("survivor", func(ctx context.Context) error {
		close(survivor)
		<-ctx.Done()
		return nil
	})

	<-survivor
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, ctx.Err(), "other tasks keep running")

	g.Stop()
	assert.NoError(t, g.Wait())
}

func TestGroup_FatalErrorCancelsGroup(t *testing.T) {
	g, ctx := NewGroup(context.Background(), zerolog.Nop())
	uiGone := errors.New("ui gone")

	g.Go("ui", func(context.Context) error { return Fatal(uiGone) })
	g.Go("poller", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := g.Wait()
	assert.ErrorIs(t, err, uiGone)
	assert.True(t, IsFatal(err))
	assert.Error(t, ctx.Err())
}

func TestSleep(t *testing.T) {
	assert.True(t, Sleep(context.Background(), time.Millisecond))
	assert.True(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Sleep(ctx, time.Hour))
	assert.False(t, Sleep(ctx, 0))
	assert.Nil(t, Fatal(nil))
}
