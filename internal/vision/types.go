// Package vision observes the user's screen for Pixie: which window is in
// front, what kind of application it is, and an optional screenshot.
package vision

import (
	"errors"
	"fmt"
	"time"

	"github.com/normanking/pixie/internal/textutil"
)

// Common errors
var (
	ErrScreenNotAvailable = errors.New("screen capture not available")
	ErrProbeNotAvailable  = errors.New("active window probe not available")
)

// MaxDigestLen bounds the textual context handed to classification.
const MaxDigestLen = 200

// WindowInfo describes the foreground window.
type WindowInfo struct {
	Title string    `json:"title"`
	App   string    `json:"app"` // process or application name
	At    time.Time `json:"at"`
}

// Frame represents a captured screenshot.
type Frame struct {
	Data      []byte    `json:"data"`   // Image bytes
	Format    string    `json:"format"` // png
	Timestamp time.Time `json:"timestamp"`
}

// MimeType returns the image MIME type.
func (f *Frame) MimeType() string {
	if f.Format == "" {
		return "image/png"
	}
	return "image/" + f.Format
}

// Digest renders a window as classification context:
// "<title> | <app> (<app type>)", bounded to MaxDigestLen runes.
func Digest(info WindowInfo) string {
	var s string
	switch {
	case info.Title == "" && info.App == "":
		return ""
	case info.App == "":
		s = info.Title
	default:
		s = fmt.Sprintf("%s | %s (%s)", info.Title, info.App, DetectAppType(info))
	}
	return textutil.Truncate(s, MaxDigestLen)
}

// IdleDigest is the context fed when the window has not changed for d. It
// leaves the title and app out so a still editor or terminal reads as idle
// rather than coding.
func IdleDigest(_ WindowInfo, d time.Duration) string {
	return fmt.Sprintf("idle (no window change for %s)", d.Round(time.Second))
}
