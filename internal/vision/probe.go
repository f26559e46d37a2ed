package vision

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// WindowProbe reports the foreground window.
type WindowProbe interface {
	Available() bool
	Active(ctx context.Context) (WindowInfo, error)
}

// NewProbe returns the probe for this platform, or nil when none applies.
func NewProbe() WindowProbe {
	switch runtime.GOOS {
	case "darwin":
		return &OSAScriptProbe{}
	case "linux":
		return &XDoToolProbe{}
	}
	return nil
}

func output(ctx context.Context, name string, args ...string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}

// XDoToolProbe reads the active X11 window with xdotool.
type XDoToolProbe struct{}

// Available reports whether xdotool is installed and a display is set.
func (XDoToolProbe) Available() bool {
	if os.Getenv("DISPLAY") == "" {
		return false
	}
	_, err := exec.LookPath("xdotool")
	return err == nil
}

// Active returns the focused window title and owning process name.
func (XDoToolProbe) Active(ctx context.Context) (WindowInfo, error) {
	id, err := output(ctx, "xdotool", "getactivewindow")
	if err != nil {
		return WindowInfo{}, err
	}
	title, err := output(ctx, "xdotool", "getwindowname", id)
	if err != nil {
		return WindowInfo{}, err
	}
	info := WindowInfo{Title: title, At: time.Now()}
	if pid, err := output(ctx, "xdotool", "getwindowpid", id); err == nil {
		if comm, err := os.ReadFile(filepath.Join("/proc", pid, "comm")); err == nil {
			info.App = strings.TrimSpace(string(comm))
		}
	}
	return info, nil
}

// OSAScriptProbe reads the frontmost macOS window through System Events.
type OSAScriptProbe struct{}

const frontWindowScript = `tell application "System Events"
	set frontApp to first application process whose frontmost is true
	set appName to name of frontApp
	set winTitle to ""
	try
		set winTitle to name of front window of frontApp
	end try
end tell
return appName & linefeed & winTitle`

// Available reports whether osascript is installed.
func (OSAScriptProbe) Available() bool {
	_, err := exec.LookPath("osascript")
	return err == nil
}

// Active returns the frontmost application and its window title.
func (OSAScriptProbe) Active(ctx context.Context) (WindowInfo, error) {
	out, err := output(ctx, "osascript", "-e", frontWindowScript)
	if err != nil {
		return WindowInfo{}, err
	}
	app, title, _ := strings.Cut(out, "\n")
	if title == "" {
		title = app
	}
	return WindowInfo{Title: strings.TrimSpace(title), App: strings.TrimSpace(app), At: time.Now()}, nil
}

// Screenshotter captures the screen.
type Screenshotter interface {
	Available() bool
	Capture(ctx context.Context) (*Frame, error)
}

// CommandScreenshotter writes a PNG through an external tool.
type CommandScreenshotter struct {
	bin  string
	args func(path string) []string
}

// NewScreenshotter returns the first screenshot tool installed for this
// platform, or nil.
func NewScreenshotter() Screenshotter {
	var candidates []*CommandScreenshotter
	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates, &CommandScreenshotter{bin: "screencapture", args: func(p string) []string {
			return []string{"-x", "-t", "png", p}
		}})
	case "linux":
		candidates = append(candidates,
			&CommandScreenshotter{bin: "gnome-screenshot", args: func(p string) []string { return []string{"-f", p} }},
			&CommandScreenshotter{bin: "import", args: func(p string) []string { return []string{"-window", "root", p} }},
			&CommandScreenshotter{bin: "scrot", args: func(p string) []string { return []string{"-o", p} }},
		)
	}
	for _, c := range candidates {
		if c.Available() {
			return c
		}
	}
	return nil
}

// Available reports whether the tool is installed.
func (c *CommandScreenshotter) Available() bool {
	_, err := exec.LookPath(c.bin)
	return err == nil
}

// Capture takes one screenshot.
func (c *CommandScreenshotter) Capture(ctx context.Context) (*Frame, error) {
	f, err := os.CreateTemp("", "pixie-shot-*.png")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if _, err := output(ctx, c.bin, c.args(path)...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScreenNotAvailable, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrScreenNotAvailable
	}
	return &Frame{Data: data, Format: "png", Timestamp: time.Now()}, nil
}
