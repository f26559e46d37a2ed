package activity

import (
	"time"

	"github.com/normanking/pixie/internal/textutil"
)

const (
	// DefaultHistoryCapacity bounds the archived record history.
	DefaultHistoryCapacity = 20

	// MaxDigestLen is the stored length of a context digest, in runes.
	MaxDigestLen = 200
)

// Record is a stretch of time spent in one category.
type Record struct {
	Category  Category  `json:"category"`
	Digest    string    `json:"digest"`
	StartedAt time.Time `json:"started_at"`
}

// Tracker holds the current record, the archived history and the idle
// counter. Like the ledger it is owned by the scheduler goroutine and is not
// locked.
type Tracker struct {
	keywords Keywords
	capacity int

	current Record
	started bool
	history []Record
	idle    int
}

// NewTracker creates a tracker. A non-positive capacity uses the default.
func NewTracker(capacity int, kw Keywords) *Tracker {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &Tracker{
		keywords: kw.withDefaults(),
		capacity: capacity,
		current:  Record{Category: General},
		history:  make([]Record, 0, capacity),
	}
}

// Observe classifies a snapshot and updates the tracker. It returns the
// current record afterwards and whether a new record was started.
//
// A snapshot in the current category only refreshes the digest; StartedAt
// is kept and nothing is archived.
func (t *Tracker) Observe(snapshot string, now time.Time) (Record, bool) {
	c := Classify(snapshot, t.keywords)
	digest := textutil.Truncate(snapshot, MaxDigestLen)

	if c == Idle {
		t.idle++
	} else {
		t.idle = 0
	}

	if t.started && c == t.current.Category {
		t.current.Digest = digest
		return t.current, false
	}

	if t.started {
		t.archive(t.current)
	}
	t.current = Record{Category: c, Digest: digest, StartedAt: now}
	t.started = true
	return t.current, true
}

func (t *Tracker) archive(r Record) {
	if len(t.history) >= t.capacity {
		n := copy(t.history, t.history[len(t.history)-t.capacity+1:])
		t.history = t.history[:n]
	}
	t.history = append(t.history, r)
}

// Current returns the current record. Before the first observation it is a
// General record with a zero StartedAt.
func (t *Tracker) Current() Record { return t.current }

// Dwell returns how long the current record has lasted.
func (t *Tracker) Dwell(now time.Time) time.Duration {
	if !t.started {
		return 0
	}
	return now.Sub(t.current.StartedAt)
}

// History returns a copy of archived records, oldest first.
func (t *Tracker) History() []Record {
	out := make([]Record, len(t.history))
	copy(out, t.history)
	return out
}

// IdleCount returns the number of consecutive idle classifications.
func (t *Tracker) IdleCount() int { return t.idle }

// SetKeywords replaces the keyword lists used by later observations.
func (t *Tracker) SetKeywords(kw Keywords) { t.keywords = kw.withDefaults() }
