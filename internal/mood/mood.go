// Package mood holds the pet's mood and the weight table used to pick a new
// one.
package mood

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/normanking/pixie/internal/activity"
)

// Mood is the pet's current disposition.
type Mood string

const (
	Helpful     Mood = "helpful"
	Playful     Mood = "playful"
	Curious     Mood = "curious"
	Encouraging Mood = "encouraging"
	Sleepy      Mood = "sleepy"
	Excited     Mood = "excited"
)

// All lists every mood in table order.
var All = []Mood{Helpful, Playful, Curious, Encouraging, Sleepy, Excited}

// DefaultRow names the row used for categories without their own.
const DefaultRow = "default"

var (
	ErrEmptyTable = errors.New("mood table has no default row")
	ErrBadWeights = errors.New("mood weights must be non-negative with a positive sum")
)

//go:embed table.yaml
var builtinTable []byte

// Source supplies uniform draws in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Weights maps each mood to a relative weight.
type Weights map[Mood]float64

// Table maps a row name (an activity category or "default") to weights.
type Table struct {
	Rows map[string]Weights `yaml:"rows"`
}

// Default returns the built-in table.
func Default() *Table {
	t, err := Parse(builtinTable)
	if err != nil {
		panic(fmt.Sprintf("mood: builtin table: %v", err))
	}
	return t
}

// Load reads a table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mood table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse mood table: %w", err)
	}
	if _, ok := t.Rows[DefaultRow]; !ok {
		return nil, ErrEmptyTable
	}
	for name, w := range t.Rows {
		if err := w.validate(); err != nil {
			return nil, fmt.Errorf("row %q: %w", name, err)
		}
	}
	return &t, nil
}

func (w Weights) validate() error {
	var sum float64
	for m, v := range w {
		if !m.Valid() || v < 0 {
			return ErrBadWeights
		}
		sum += v
	}
	if sum <= 0 {
		return ErrBadWeights
	}
	return nil
}

// Row returns the weights used for a category.
func (t *Table) Row(c activity.Category) Weights {
	if w, ok := t.Rows[string(c)]; ok {
		return w
	}
	return t.Rows[DefaultRow]
}

// Choose picks a mood for the category by weighted random choice.
func (t *Table) Choose(c activity.Category, src Source) Mood {
	return Pick(t.Row(c), src)
}

// Pick is the single weighted-choice function over a weight vector.
func Pick(w Weights, src Source) Mood {
	var total float64
	for _, m := range All {
		total += w[m]
	}
	if total <= 0 {
		return Helpful
	}

	x := src.Float64() * total
	var last Mood
	for _, m := range All {
		v := w[m]
		if v <= 0 {
			continue
		}
		if x < v {
			return m
		}
		x -= v
		last = m
	}
	// float rounding can leave x just past the final bucket
	return last
}

// Valid reports whether m is a known mood.
func (m Mood) Valid() bool {
	for _, v := range All {
		if v == m {
			return true
		}
	}
	return false
}

// Traits returns the personality traits passed to conversational replies.
func (m Mood) Traits() []string {
	switch m {
	case Playful:
		return []string{"playful", "friendly", "witty"}
	case Curious:
		return []string{"curious", "friendly", "inquisitive"}
	case Encouraging:
		return []string{"encouraging", "supportive", "warm"}
	case Sleepy:
		return []string{"sleepy", "calm", "gentle"}
	case Excited:
		return []string{"excited", "energetic", "cheerful"}
	default:
		return []string{"helpful", "friendly", "curious"}
	}
}
