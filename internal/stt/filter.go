package stt

import (
	"regexp"
	"strings"
)

// DefaultFillerWords are removed from transcripts before classification.
var DefaultFillerWords = []string{
	"um", "uh", "uhh", "umm", "er", "ah", "hmm", "mm",
	"you know", "basically", "literally",
}

// Filter removes filler words and noise from transcripts.
type Filter struct {
	pattern *regexp.Regexp
}

// NewFilter creates a filter. A nil list uses DefaultFillerWords.
func NewFilter(fillerWords []string) *Filter {
	if fillerWords == nil {
		fillerWords = DefaultFillerWords
	}
	if len(fillerWords) == 0 {
		return &Filter{}
	}
	alts := make([]string, 0, len(fillerWords))
	for _, w := range fillerWords {
		alts = append(alts, regexp.QuoteMeta(strings.ToLower(w)))
	}
	return &Filter{
		pattern: regexp.MustCompile(`(?i)\b(` + strings.Join(alts, "|") + `)\b[,.]?`),
	}
}

// Clean strips fillers and collapses whitespace. ok is false when nothing
// meaningful is left.
func (f *Filter) Clean(text string) (cleaned string, ok bool) {
	cleaned = text
	if f.pattern != nil {
		cleaned = f.pattern.ReplaceAllString(cleaned, " ")
	}
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	cleaned = strings.TrimLeft(cleaned, ",. ")
	return cleaned, strings.ContainsFunc(cleaned, isWordRune)
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r > 0x7f
}

var (
	// petNames are words that mean the user is talking to the pet.
	petNames = []string{"pixie", "pet", "assistant"}

	questionStarters = []string{
		"what", "how", "why", "when", "where", "who", "which",
		"can you", "could you", "would you", "do you",
		"tell me", "explain", "recommend", "suggest",
	}

	adviceWords = []string{"recommend", "suggest", "help", "advice"}
)

// IsAddressed reports whether overheard speech is meant for the pet: it
// names the pet (name plus the generic pet names), opens like a question,
// contains a question mark, or asks for advice.
func IsAddressed(text, name string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}

	names := petNames
	if name != "" {
		names = append([]string{strings.ToLower(name)}, petNames...)
	}
	for _, n := range names {
		if strings.Contains(lower, n) {
			return true
		}
	}
	for _, s := range questionStarters {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	if strings.Contains(lower, "?") {
		return true
	}
	for _, w := range adviceWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
