package source

import (
	"strings"

	"github.com/GriffinCanCode/browser-source/internal/scheme"
)

const (
	DefaultURL    = "https://obsproject.com/browser-source"
	DefaultWidth  = 800
	DefaultHeight = 600
	DefaultFPS    = 30

	MinSize = 1
	MaxSize = 8192
	MinFPS  = 1
	MaxFPS  = 60
)

// DefaultCSS keeps the page background transparent.
const DefaultCSS = "body { background-color: rgba(0, 0, 0, 0); margin: 0px auto; overflow: hidden; }"

// Settings is the user configuration of one source.
type Settings struct {
	IsLocalFile       bool   `json:"is_local_file" yaml:"is_local_file" toml:"is_local_file"`
	LocalFile         string `json:"local_file" yaml:"local_file" toml:"local_file"`
	URL               string `json:"url" yaml:"url" toml:"url"`
	Width             int    `json:"width" yaml:"width" toml:"width"`
	Height            int    `json:"height" yaml:"height" toml:"height"`
	FPSCustom         bool   `json:"fps_custom" yaml:"fps_custom" toml:"fps_custom"`
	FPS               int    `json:"fps" yaml:"fps" toml:"fps"`
	RerouteAudio      bool   `json:"reroute_audio" yaml:"reroute_audio" toml:"reroute_audio"`
	CSS               string `json:"css" yaml:"css" toml:"css"`
	Shutdown          bool   `json:"shutdown" yaml:"shutdown" toml:"shutdown"`
	RestartWhenActive bool   `json:"restart_when_active" yaml:"restart_when_active" toml:"restart_when_active"`
}

// DefaultSettings returns the settings of a newly created source
func DefaultSettings() Settings {
	return Settings{
		URL:       DefaultURL,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		FPSCustom: true,
		FPS:       DefaultFPS,
		CSS:       DefaultCSS,
	}
}

// Normalize clamps sizes and frame rate into their valid ranges.
func (s Settings) Normalize() Settings {
	s.Width = clamp(s.Width, MinSize, MaxSize)
	s.Height = clamp(s.Height, MinSize, MaxSize)
	s.FPS = clamp(s.FPS, MinFPS, MaxFPS)
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ResolveURL returns the URL the browser loads. Local files are rewritten
// under the synthetic absolute origin.
func (s Settings) ResolveURL() string {
	if !s.IsLocalFile {
		return s.URL
	}
	if s.LocalFile == "" {
		return ""
	}
	return scheme.EncodeLocalPath(s.LocalFile)
}

// FrameRate returns the frame rate the browser paints at.
func (s Settings) FrameRate(canvasFPS int) int {
	if s.FPSCustom || canvasFPS <= 0 {
		return s.FPS
	}
	return canvasFPS
}

// requiresRecreate reports whether moving from s to next needs a new
// browser. Width and height alone never do.
func (s Settings) requiresRecreate(next Settings) bool {
	return s.IsLocalFile != next.IsLocalFile ||
		s.ResolveURL() != next.ResolveURL() ||
		s.FPSCustom != next.FPSCustom ||
		s.FPS != next.FPS ||
		s.RerouteAudio != next.RerouteAudio ||
		s.CSS != next.CSS ||
		s.Shutdown != next.Shutdown ||
		s.RestartWhenActive != next.RestartWhenActive
}

func (s Settings) sizeChanged(next Settings) bool {
	return s.Width != next.Width || s.Height != next.Height
}

// PropertyType is the editor kind of a property
type PropertyType string

const (
	PropertyBool   PropertyType = "bool"
	PropertyInt    PropertyType = "int"
	PropertyText   PropertyType = "text"
	PropertyPath   PropertyType = "path"
	PropertyButton PropertyType = "button"
)

// Property describes one editable setting.
type Property struct {
	Name        string       `json:"name"`
	Type        PropertyType `json:"type"`
	Label       string       `json:"label"`
	Visible     bool         `json:"visible"`
	Enabled     bool         `json:"enabled"`
	Min         int          `json:"min,omitempty"`
	Max         int          `json:"max,omitempty"`
	Step        int          `json:"step,omitempty"`
	Multiline   bool         `json:"multiline,omitempty"`
	Monospace   bool         `json:"monospace,omitempty"`
	Filter      string       `json:"filter,omitempty"`
	DefaultPath string       `json:"default_path,omitempty"`
}

// Properties builds the property schema for settings. currentURL is the URL
// the source is showing and seeds the file picker's start directory.
func Properties(settings Settings, currentURL string) []Property {
	return []Property{
		{Name: "is_local_file", Type: PropertyBool, Label: "Local file", Visible: true, Enabled: true},
		{Name: "local_file", Type: PropertyPath, Label: "Local file", Visible: settings.IsLocalFile, Enabled: true,
			Filter: "*.*", DefaultPath: startDir(currentURL)},
		{Name: "url", Type: PropertyText, Label: "URL", Visible: !settings.IsLocalFile, Enabled: true},
		{Name: "width", Type: PropertyInt, Label: "Width", Visible: true, Enabled: true, Min: MinSize, Max: MaxSize, Step: 1},
		{Name: "height", Type: PropertyInt, Label: "Height", Visible: true, Enabled: true, Min: MinSize, Max: MaxSize, Step: 1},
		{Name: "reroute_audio", Type: PropertyBool, Label: "Control audio via host", Visible: true, Enabled: true},
		{Name: "fps_custom", Type: PropertyBool, Label: "Use custom frame rate", Visible: true, Enabled: false},
		{Name: "fps", Type: PropertyInt, Label: "FPS", Visible: settings.FPSCustom, Enabled: true, Min: MinFPS, Max: MaxFPS, Step: 1},
		{Name: "css", Type: PropertyText, Label: "Custom CSS", Visible: true, Enabled: true, Multiline: true, Monospace: true},
		{Name: "shutdown", Type: PropertyBool, Label: "Shutdown source when not visible", Visible: true, Enabled: true},
		{Name: "restart_when_active", Type: PropertyBool, Label: "Refresh browser when scene becomes active", Visible: true, Enabled: true},
		{Name: "refreshnocache", Type: PropertyButton, Label: "Refresh cache of current page", Visible: true, Enabled: true},
	}
}

// startDir returns url up to and including its last slash, with
// backslashes normalized.
func startDir(url string) string {
	if url == "" {
		return ""
	}
	path := strings.ReplaceAll(url, "\\", "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i+1]
	}
	return path
}
