// Package enginetest provides a recording in-memory engine for tests.
package enginetest

import (
	"sync"

	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
	"github.com/GriffinCanCode/browser-source/internal/engine"
)

// Engine records every browser it creates.
type Engine struct {
	mu        sync.Mutex
	nextID    int
	browsers  []*Browser
	shutdowns int

	// CreateErr makes CreateBrowserSync fail.
	CreateErr error
}

var _ engine.Engine = (*Engine)(nil)

// New creates an empty engine
func New() *Engine {
	return &Engine{}
}

// Factory returns a factory handing out e.
func (e *Engine) Factory() engine.Factory {
	return func(*engine.TaskQueue) (engine.Engine, error) {
		return e, nil
	}
}

func (e *Engine) CreateBrowserSync(info engine.WindowInfo, client engine.Client, url string, settings engine.BrowserSettings) (engine.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	e.nextID++
	b := &Browser{
		id:       e.nextID,
		Info:     info,
		Settings: settings,
		main:     &Frame{main: true, url: url},
	}
	b.host = &Host{client: client, browser: b}
	e.browsers = append(e.browsers, b)
	return b, nil
}

func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdowns++
}

// Browsers returns every browser created so far.
func (e *Engine) Browsers() []*Browser {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Browser(nil), e.browsers...)
}

// Last returns the most recently created browser, or nil.
func (e *Engine) Last() *Browser {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.browsers) == 0 {
		return nil
	}
	return e.browsers[len(e.browsers)-1]
}

// Shutdowns returns how often Shutdown was called.
func (e *Engine) Shutdowns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdowns
}

// Browser is a recorded browser.
type Browser struct {
	id       int
	host     *Host
	main     *Frame
	Info     engine.WindowInfo
	Settings engine.BrowserSettings

	mu      sync.Mutex
	reloads int
}

func (b *Browser) ID() int                  { return b.id }
func (b *Browser) Host() engine.BrowserHost { return b.host }
func (b *Browser) MainFrame() engine.Frame  { return b.main }

func (b *Browser) ReloadIgnoreCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloads++
}

// Reloads returns how often the browser was reloaded.
func (b *Browser) Reloads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reloads
}

// RecordedHost returns the concrete host.
func (b *Browser) RecordedHost() *Host { return b.host }

// Frame returns the concrete main frame.
func (b *Browser) Frame() *Frame { return b.main }

// Frame is a recorded frame.
type Frame struct {
	main bool
	url  string

	mu      sync.Mutex
	scripts []string
}

// NewFrame creates a standalone frame.
func NewFrame(main bool, url string) *Frame {
	return &Frame{main: main, url: url}
}

func (f *Frame) IsMain() bool { return f.main }
func (f *Frame) URL() string  { return f.url }

func (f *Frame) ExecuteJavaScript(code, _ string, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, code)
}

// Scripts returns the code passed to ExecuteJavaScript.
func (f *Frame) Scripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scripts...)
}

// MouseClick is a recorded click.
type MouseClick struct {
	Event      engine.MouseEvent
	Button     engine.MouseButton
	Up         bool
	ClickCount int
}

// Host records every call made on a browser host.
type Host struct {
	client  engine.Client
	browser *Browser

	mu          sync.Mutex
	calls       []string
	messages    []*envelope.Message
	resized     int
	invalidated int
	hidden      bool
	muted       bool
	focused     bool
	closed      bool
	clicks      []MouseClick
	keys        []engine.KeyEvent

	// SendErr makes SendProcessMessage fail.
	SendErr error
}

func (h *Host) record(call string) {
	h.calls = append(h.calls, call)
}

func (h *Host) Client() engine.Client { return h.client }

func (h *Host) WasResized() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("WasResized")
	h.resized++
}

func (h *Host) WasHidden(hidden bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("WasHidden")
	h.hidden = hidden
}

func (h *Host) Invalidate(engine.PaintElementType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("Invalidate")
	h.invalidated++
}

func (h *Host) SendMouseClickEvent(ev engine.MouseEvent, button engine.MouseButton, up bool, count int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SendMouseClickEvent")
	h.clicks = append(h.clicks, MouseClick{Event: ev, Button: button, Up: up, ClickCount: count})
}

func (h *Host) SendMouseMoveEvent(engine.MouseEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SendMouseMoveEvent")
}

func (h *Host) SendMouseWheelEvent(engine.MouseEvent, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SendMouseWheelEvent")
}

func (h *Host) SendKeyEvent(ev engine.KeyEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SendKeyEvent")
	h.keys = append(h.keys, ev)
}

func (h *Host) SetFocus(focus bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SetFocus")
	h.focused = focus
}

func (h *Host) SetAudioMuted(muted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SetAudioMuted")
	h.muted = muted
}

func (h *Host) CloseBrowser(bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("CloseBrowser")
	h.closed = true
}

func (h *Host) SendProcessMessage(_ engine.ProcessID, msg *envelope.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SendProcessMessage")
	if h.SendErr != nil {
		return h.SendErr
	}
	h.messages = append(h.messages, msg.Clone())
	return nil
}

// Calls returns the names of recorded calls in order.
func (h *Host) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// Messages returns the envelopes sent to the renderer role.
func (h *Host) Messages() []*envelope.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*envelope.Message(nil), h.messages...)
}

// Resized returns how often WasResized was called.
func (h *Host) Resized() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resized
}

// Invalidated returns how often Invalidate was called.
func (h *Host) Invalidated() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.invalidated
}

// Closed reports whether CloseBrowser was called.
func (h *Host) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Focused reports the last focus state.
func (h *Host) Focused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.focused
}

// Hidden reports the last hidden state.
func (h *Host) Hidden() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hidden
}

// Clicks returns recorded mouse clicks.
func (h *Host) Clicks() []MouseClick {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]MouseClick(nil), h.clicks...)
}

// Keys returns recorded key events.
func (h *Host) Keys() []engine.KeyEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]engine.KeyEvent(nil), h.keys...)
}

// MenuModel is a recording context menu.
type MenuModel struct {
	Items []string
}

func (m *MenuModel) Clear()     { m.Items = nil }
func (m *MenuModel) Count() int { return len(m.Items) }
