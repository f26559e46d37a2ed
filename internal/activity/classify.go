// Package activity turns free-form context snapshots into a coarse activity
// category and tracks how long the user has been in it.
package activity

import "strings"

// Category is a coarse description of what the user is doing.
type Category string

const (
	General Category = "general"
	Error   Category = "error"
	Success Category = "success"
	Coding  Category = "coding"
	Idle    Category = "idle"
)

// Categories lists every category in classification precedence order.
var Categories = []Category{Error, Success, Coding, Idle, General}

// Keywords holds the substrings that select each category. Matching is
// case-insensitive.
type Keywords struct {
	Error   []string `mapstructure:"error" yaml:"error"`
	Success []string `mapstructure:"success" yaml:"success"`
	Coding  []string `mapstructure:"coding" yaml:"coding"`
	Idle    []string `mapstructure:"idle" yaml:"idle"`
}

// DefaultKeywords returns the built-in keyword lists.
func DefaultKeywords() Keywords {
	return Keywords{
		Error: []string{
			"error", "exception", "traceback", "failed", "failure", "fatal",
			"panic", "segmentation fault", "crash", "stack trace",
		},
		Success: []string{
			"success", "succeeded", "passed", "build complete", "completed",
			"deployed", "merged", "all tests pass",
		},
		Coding: []string{
			"vscode", "visual studio", "pycharm", "intellij", "goland", "xcode",
			"android studio", "sublime", "vim", "emacs", "terminal", "iterm",
			"konsole", "(ide)", "source code", "coding", "programming",
		},
		Idle: []string{
			"idle", "screensaver", "screen saver", "lock screen", "lockscreen",
			"loginwindow", "no active window", "away from keyboard",
		},
	}
}

// withDefaults fills empty lists from DefaultKeywords.
func (k Keywords) withDefaults() Keywords {
	d := DefaultKeywords()
	if len(k.Error) == 0 {
		k.Error = d.Error
	}
	if len(k.Success) == 0 {
		k.Success = d.Success
	}
	if len(k.Coding) == 0 {
		k.Coding = d.Coding
	}
	if len(k.Idle) == 0 {
		k.Idle = d.Idle
	}
	return k
}

func (k Keywords) list(c Category) []string {
	switch c {
	case Error:
		return k.Error
	case Success:
		return k.Success
	case Coding:
		return k.Coding
	case Idle:
		return k.Idle
	}
	return nil
}

// Classify maps a snapshot to a category. Categories are tried in
// precedence order error > success > coding > idle; no match, or an empty
// snapshot, yields General.
func Classify(snapshot string, kw Keywords) Category {
	s := strings.ToLower(strings.TrimSpace(snapshot))
	if s == "" {
		return General
	}
	kw = kw.withDefaults()
	for _, c := range Categories {
		for _, word := range kw.list(c) {
			if word != "" && strings.Contains(s, strings.ToLower(word)) {
				return c
			}
		}
	}
	return General
}
