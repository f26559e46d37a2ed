package transcript

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/pixie/internal/ledger"
)

func TestStore_RecordsLedgerEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "transcript.db")
	store, err := Open(path, "Pixie")
	require.NoError(t, err)
	defer store.Close()

	var sinkErrs []error
	l := ledger.New(2, ledger.WithSink(store, func(err error) { sinkErrs = append(sinkErrs, err) }))
	l.Append(ledger.SpeakerUser, "hello")
	l.Append(ledger.SpeakerPet, "hi there")
	l.Append(ledger.SpeakerUser, "how are you?")
	require.Empty(t, sinkErrs)

	// the ledger evicts, the archive keeps everything
	assert.Equal(t, 2, l.Len())
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recent, err := store.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	want := l.Entries()
	for i := range want {
		assert.Equal(t, want[i].ID, recent[i].ID)
		assert.Equal(t, want[i].Speaker, recent[i].Speaker)
		assert.Equal(t, want[i].Text, recent[i].Text)
		assert.WithinDuration(t, want[i].At, recent[i].At, time.Millisecond)
	}
}

func TestStore_SessionsAreSeparate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.db")

	first, err := Open(path, "Pixie")
	require.NoError(t, err)
	require.NoError(t, first.Record(ledger.Entry{ID: "a", Speaker: ledger.SpeakerPet, Text: "one", At: time.Now()}))
	require.NoError(t, first.Close())

	second, err := Open(path, "Pixie")
	require.NoError(t, err)
	defer second.Close()
	assert.NotEqual(t, first.Session(), second.Session())

	recent, err := second.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	n, err := second.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_DuplicateIDFails(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "t.db"), "Pixie")
	require.NoError(t, err)
	defer store.Close()

	e := ledger.Entry{ID: "dup", Speaker: ledger.SpeakerUser, Text: "x", At: time.Now()}
	require.NoError(t, store.Record(e))
	assert.Error(t, store.Record(e))
}
