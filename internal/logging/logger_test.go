package logging

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_HistoryCapturesComponentLogs(t *testing.T) {
	l, err := New(&Config{Level: "debug", MaxHistory: 3})
	require.NoError(t, err)

	log := l.Component("scheduler")
	log.Info().Msg("one")
	log.Warn().Err(errors.New("bad")).Msg("two")
	log.Debug().Msg("three")
	log.Info().Msg("four")

	hist := l.History(0)
	require.Len(t, hist, 3)
	assert.Equal(t, "two", hist[0].Message)
	assert.Equal(t, "warn", hist[0].Level)
	assert.Equal(t, "bad", hist[0].Error)
	assert.Equal(t, "scheduler", hist[2].Component)
	assert.Equal(t, "four", hist[2].Message)

	assert.Len(t, l.History(1), 1)
	assert.Equal(t, "four", l.History(1)[0].Message)
}

func TestNew_LevelFilters(t *testing.T) {
	var console bytes.Buffer
	l, err := New(&Config{Level: "warn", Console: &console})
	require.NoError(t, err)

	log := l.Component("x")
	log.Info().Msg("hidden")
	log.Error().Msg("shown")

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
	assert.Len(t, l.History(0), 1)
}

func TestNew_WritesFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(&Config{Dir: dir, Level: "info"})
	require.NoError(t, err)

	clog := l.Component("ledger")
	clog.Info().Msg("appended")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"ledger"`)
	assert.Contains(t, string(data), `"app":"pixie"`)
}

func TestSetOnLog(t *testing.T) {
	l, err := New(&Config{Level: "info"})
	require.NoError(t, err)

	var got []LogEntry
	l.SetOnLog(func(e LogEntry) { got = append(got, e) })
	clog := l.Component("ui")
	clog.Info().Msg("frame")

	require.Len(t, got, 1)
	assert.Equal(t, "ui", got[0].Component)
}

func TestSetLevel(t *testing.T) {
	l, err := New(&Config{Level: "info"})
	require.NoError(t, err)

	assert.Error(t, l.SetLevel("loud"))
	require.NoError(t, l.SetLevel("error"))
	clog := l.Component("x")
	clog.Info().Msg("suppressed")
	assert.Empty(t, l.History(0))
}
