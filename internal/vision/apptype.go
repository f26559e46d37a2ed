package vision

import "strings"

// AppType is a coarse application family.
type AppType string

const (
	AppVSCode       AppType = "vscode"
	AppExcel        AppType = "excel"
	AppWord         AppType = "word"
	AppPowerPoint   AppType = "powerpoint"
	AppBrowser      AppType = "browser"
	AppIDE          AppType = "ide"
	AppTerminal     AppType = "terminal"
	AppFileExplorer AppType = "file_explorer"
	AppImageEditor  AppType = "image_editor"
	AppVideoPlayer  AppType = "video_player"
	AppGame         AppType = "game"
	AppUnknown      AppType = "unknown"
)

type appRule struct {
	kind   AppType
	apps   []string // substrings of the lower-cased app name
	titles []string // substrings of the lower-cased title
}

// appRules are checked in order; the first match wins.
var appRules = []appRule{
	{AppVSCode, []string{"code"}, []string{"visual studio code"}},
	{AppExcel, []string{"excel"}, []string{"excel"}},
	{AppWord, []string{"winword"}, []string{"word"}},
	{AppPowerPoint, []string{"powerpnt"}, []string{"powerpoint"}},
	{AppBrowser, []string{"chrome", "firefox", "edge", "safari", "opera"}, nil},
	{AppIDE, []string{"pycharm", "intellij", "eclipse", "netbeans", "atom", "sublime", "goland"}, nil},
	{AppTerminal, []string{"cmd", "powershell", "terminal", "wt", "iterm", "konsole", "alacritty", "kitty"}, nil},
	{AppFileExplorer, []string{"explorer", "finder", "nautilus", "dolphin"}, nil},
	{AppImageEditor, []string{"photoshop", "gimp", "paint", "mspaint", "krita"}, nil},
	{AppVideoPlayer, []string{"vlc", "mpc", "wmplayer", "quicktime", "mpv"}, nil},
	{AppGame, []string{"steam", "origin", "uplay", "epic"}, nil},
}

// DetectAppType guesses the application family from the app name and
// window title.
func DetectAppType(info WindowInfo) AppType {
	app := strings.ToLower(info.App)
	title := strings.ToLower(info.Title)
	for _, r := range appRules {
		for _, a := range r.apps {
			if app != "" && strings.Contains(app, a) {
				return r.kind
			}
		}
		for _, t := range r.titles {
			if strings.Contains(title, t) {
				return r.kind
			}
		}
	}
	return AppUnknown
}
