package companion

import (
	"context"
	"errors"
	"strings"
)

// ErrNoScreenshot is returned when a screen analysis has no image to look at.
var ErrNoScreenshot = errors.New("no screenshot available")

const (
	troubleThinking = "Sorry, I'm having trouble thinking right now. Try again in a moment!"
	troubleSeeing   = "I'm having trouble seeing your screen right now. Please try again! 🐱"
)

// Fallback returns the apology shown to the user when a reply could not be
// produced because of err.
func Fallback(err error) string {
	if msg, ok := knownFailure(err); ok {
		return msg
	}
	return troubleThinking
}

// ScreenFallback is Fallback for a screen analysis.
func ScreenFallback(err error) string {
	if errors.Is(err, ErrNoScreenshot) {
		return troubleSeeing
	}
	if msg, ok := knownFailure(err); ok {
		return msg
	}
	return troubleSeeing
}

func knownFailure(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, ErrUnavailable):
		return "My AI brain isn't connected right now, but I'm still here keeping you company! 🐾", true
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "timeout"):
		return "I'm thinking too slowly! Could you try asking again? 🐾", true
	case strings.Contains(msg, "429"), strings.Contains(msg, "quota"), strings.Contains(msg, "resource_exhausted"):
		return "I've hit my AI chat limit for now, but I'm still here as your desktop companion. Try again a bit later! 🐾", true
	case strings.Contains(msg, "404"), strings.Contains(msg, "not found"):
		return "There's an issue with my AI model configuration. Please check the API setup. 🛠️", true
	}
	return "", false
}
