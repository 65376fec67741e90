package engine

import (
	"github.com/dop251/goja"

	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
)

// ProcessID names one of the two isolated roles of the engine.
type ProcessID int

const (
	PIDBrowser ProcessID = iota
	PIDRenderer
)

func (p ProcessID) String() string {
	if p == PIDRenderer {
		return "renderer"
	}
	return "browser"
}

// PaintElementType distinguishes the main view from popup widgets.
type PaintElementType int

const (
	PaintView PaintElementType = iota
	PaintPopup
)

// Rect is a pixel rectangle in view coordinates.
type Rect struct {
	X, Y          int
	Width, Height int
}

// LogSeverity is the severity of a page console message.
type LogSeverity int

const (
	LogDefault LogSeverity = iota
	LogVerbose
	LogInfo
	LogWarning
	LogError
	LogFatal
	LogDisable
)

// MouseButton identifies the clicked button.
type MouseButton int

const (
	MouseLeft MouseButton = iota
	MouseMiddle
	MouseRight
)

// MouseEvent is a pointer position with modifier flags.
type MouseEvent struct {
	X, Y      int
	Modifiers uint32
}

// KeyEventType is the phase of a keyboard event.
type KeyEventType int

const (
	KeyRawDown KeyEventType = iota
	KeyDown
	KeyUp
	KeyChar
)

// KeyEvent is a keyboard event delivered to the page.
type KeyEvent struct {
	Type           KeyEventType
	Modifiers      uint32
	WindowsKeyCode int
	NativeKeyCode  int
	Character      rune
}

// WindowInfo describes the off-screen view of a new browser.
type WindowInfo struct {
	Width      int
	Height     int
	Windowless bool
}

// BrowserSettings are per-browser rendering settings.
type BrowserSettings struct {
	FrameRate            int
	DefaultFontSize      int
	DefaultFixedFontSize int
}

// AudioParameters describe an audio stream.
type AudioParameters struct {
	ChannelLayout   ChannelLayout
	SampleRate      int
	FramesPerBuffer int
}

// MenuModel is the context menu under construction.
type MenuModel interface {
	Clear()
	Count() int
}

// Frame is the browser-role view of a page frame.
type Frame interface {
	IsMain() bool
	URL() string
	// ExecuteJavaScript queues code for evaluation in the frame's context
	// inside the renderer role. Errors surface as console messages.
	ExecuteJavaScript(code, scriptURL string, line int)
}

// Browser is a handle to one off-screen browser instance.
type Browser interface {
	ID() int
	Host() BrowserHost
	MainFrame() Frame
	ReloadIgnoreCache()
}

// BrowserHost controls a browser from the browser role. Every method must be
// called on the UI-affinity queue.
type BrowserHost interface {
	Client() Client
	WasResized()
	WasHidden(hidden bool)
	Invalidate(typ PaintElementType)
	SendMouseClickEvent(ev MouseEvent, button MouseButton, mouseUp bool, clickCount int)
	SendMouseMoveEvent(ev MouseEvent, mouseLeave bool)
	SendMouseWheelEvent(ev MouseEvent, deltaX, deltaY int)
	SendKeyEvent(ev KeyEvent)
	SetFocus(focus bool)
	SetAudioMuted(muted bool)
	CloseBrowser(force bool)
	SendProcessMessage(target ProcessID, msg *envelope.Message) error
}

// RenderHandler receives painted frames.
type RenderHandler interface {
	GetViewRect(b Browser) Rect
	OnPaint(b Browser, typ PaintElementType, dirty []Rect, buffer []byte, width, height int)
}

// AudioHandler receives the page's audio output.
type AudioHandler interface {
	GetAudioParameters(b Browser, params *AudioParameters) bool
	OnAudioStreamStarted(b Browser, params AudioParameters, channels int)
	OnAudioStreamPacket(b Browser, data [][]float32, frames int, pts int64)
	OnAudioStreamStopped(b Browser)
	OnAudioStreamError(b Browser, message string)
}

// LoadHandler receives page load lifecycle events.
type LoadHandler interface {
	OnLoadEnd(b Browser, f Frame, httpStatus int)
}

// DisplayHandler receives console output.
type DisplayHandler interface {
	OnConsoleMessage(b Browser, level LogSeverity, message, source string, line int) bool
}

// LifeSpanHandler decides on popups. Returning true cancels the popup.
type LifeSpanHandler interface {
	OnBeforePopup(b Browser, f Frame, targetURL string) bool
}

// ContextMenuHandler may edit a context menu before it is shown.
type ContextMenuHandler interface {
	OnBeforeContextMenu(b Browser, f Frame, model MenuModel)
}

// ProcessMessageHandler receives envelopes sent from the renderer role.
type ProcessMessageHandler interface {
	OnProcessMessageReceived(b Browser, f Frame, source ProcessID, msg *envelope.Message) bool
}

// Client is the browser-role event sink of one browser.
type Client interface {
	RenderHandler
	AudioHandler
	LoadHandler
	DisplayHandler
	LifeSpanHandler
	ContextMenuHandler
	ProcessMessageHandler
}

// ScriptContext is one page script context (one per frame).
type ScriptContext interface {
	Runtime() *goja.Runtime
	Frame() RenderFrame
	Eval(src string) (goja.Value, error)
	// Call runs fn with the same bounds as Eval.
	Call(fn goja.Callable, this goja.Value, args ...goja.Value) (goja.Value, error)
}

// RenderFrame is the renderer-role view of a page frame.
type RenderFrame interface {
	IsMain() bool
	URL() string
	Context() ScriptContext
}

// RenderBrowser is the renderer-role view of a browser.
type RenderBrowser interface {
	ID() int
	MainFrame() RenderFrame
	Frames() []RenderFrame
	SendProcessMessage(target ProcessID, msg *envelope.Message) error
}

// RenderProcessHandler runs inside the renderer role.
type RenderProcessHandler interface {
	OnContextCreated(b RenderBrowser, f RenderFrame, ctx ScriptContext)
	OnContextReleased(b RenderBrowser, f RenderFrame, ctx ScriptContext)
	OnProcessMessageReceived(b RenderBrowser, f RenderFrame, source ProcessID, msg *envelope.Message) bool
}

// Engine creates off-screen browsers.
type Engine interface {
	// CreateBrowserSync must be called on the UI-affinity queue.
	CreateBrowserSync(info WindowInfo, client Client, url string, settings BrowserSettings) (Browser, error)
	// Shutdown releases every browser. Called once on the UI-affinity goroutine.
	Shutdown()
}

// Factory builds an engine bound to the UI-affinity queue.
type Factory func(queue *TaskQueue) (Engine, error)
