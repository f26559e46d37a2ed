// Package ledger keeps the recent dialogue between the user and the pet.
//
// A Ledger is a fixed-capacity ring buffer. It is not locked: it belongs to
// the scheduler goroutine, which is the only writer and the only reader that
// hands entries to prompt construction.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/normanking/pixie/internal/textutil"
)

const (
	// DefaultCapacity is used when a non-positive capacity is requested.
	DefaultCapacity = 50

	// MaxTextLen is the maximum stored length of an entry's text, in runes.
	MaxTextLen = 500
)

// Well-known speakers.
const (
	SpeakerUser = "user"
	SpeakerPet  = "pet"
)

// Entry is one utterance. Entries are stored and returned by value.
type Entry struct {
	ID      string    `json:"id"`
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Sink receives every appended entry, for example to archive a transcript.
type Sink interface {
	Record(e Entry) error
}

// Ledger is a bounded, insertion-ordered log of entries.
type Ledger struct {
	buf   []Entry
	start int // index of the oldest entry
	n     int

	now    func() time.Time
	sink   Sink
	onSink func(error)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithSink attaches a sink. Sink failures are reported to onErr and never
// affect the ledger itself.
func WithSink(s Sink, onErr func(error)) Option {
	return func(l *Ledger) {
		l.sink = s
		l.onSink = onErr
	}
}

// New creates a ledger holding at most capacity entries.
func New(capacity int, opts ...Option) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Ledger{
		buf: make([]Entry, capacity),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append truncates text to MaxTextLen runes and stores it, evicting the
// oldest entry when full.
func (l *Ledger) Append(speaker, text string) Entry {
	e := Entry{
		ID:      uuid.NewString(),
		Speaker: speaker,
		Text:    textutil.Truncate(text, MaxTextLen),
		At:      l.now(),
	}

	capacity := len(l.buf)
	if l.n < capacity {
		l.buf[(l.start+l.n)%capacity] = e
		l.n++
	} else {
		l.buf[l.start] = e
		l.start = (l.start + 1) % capacity
	}

	if l.sink != nil {
		if err := l.sink.Record(e); err != nil && l.onSink != nil {
			l.onSink(err)
		}
	}
	return e
}

// Entries returns a copy of all entries, oldest first.
func (l *Ledger) Entries() []Entry {
	return l.Last(l.n)
}

// Last returns a copy of the most recent n entries, oldest first.
func (l *Ledger) Last(n int) []Entry {
	if n > l.n {
		n = l.n
	}
	if n <= 0 {
		return []Entry{}
	}
	out := make([]Entry, n)
	capacity := len(l.buf)
	first := l.start + l.n - n
	for i := 0; i < n; i++ {
		out[i] = l.buf[(first+i)%capacity]
	}
	return out
}

// Len returns the number of stored entries.
func (l *Ledger) Len() int { return l.n }

// Cap returns the ledger capacity.
func (l *Ledger) Cap() int { return len(l.buf) }
