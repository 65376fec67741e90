package headless

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
	"github.com/GriffinCanCode/browser-source/internal/engine"
)

var errNotRenderer = errors.New("browser can only message the renderer role")

// Browser is one headless off-screen browser. Its renderer role runs on a
// dedicated goroutine and talks to the browser role over an envelope pipe.
type Browser struct {
	id       int
	engine   *Engine
	client   engine.Client
	pipe     envelope.Transport
	renderer *renderer
	host     *browserHost
	cancel   context.CancelFunc
	logger   *zap.Logger

	closed atomic.Bool
	muted  atomic.Bool

	mu   sync.Mutex
	main *frameRef
}

var _ engine.Browser = (*Browser)(nil)

func (b *Browser) ID() int                  { return b.id }
func (b *Browser) Host() engine.BrowserHost { return b.host }

// MainFrame returns the main frame of the last completed load.
func (b *Browser) MainFrame() engine.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.main
}

func (b *Browser) ReloadIgnoreCache() {
	b.toRenderer(func(r *renderer) { r.reload() })
}

// Muted reports whether audio output was muted by the host.
func (b *Browser) Muted() bool {
	return b.muted.Load()
}

// Closed reports whether the browser was closed.
func (b *Browser) Closed() bool {
	return b.closed.Load()
}

func (b *Browser) close() bool {
	if !b.closed.CompareAndSwap(false, true) {
		return false
	}
	b.cancel()
	_ = b.pipe.Close()
	return true
}

func (b *Browser) toRenderer(fn func(r *renderer)) {
	if b.closed.Load() {
		return
	}
	r := b.renderer
	r.mail.push(func() { fn(r) })
}

// receive forwards renderer envelopes to the client on the UI-affinity
// queue.
func (b *Browser) receive(ctx context.Context) {
	for {
		msg, err := b.pipe.Receive(ctx)
		if err != nil {
			return
		}
		b.post(func(c engine.Client) {
			c.OnProcessMessageReceived(b, b.MainFrame(), engine.PIDRenderer, msg)
		})
	}
}

// post runs fn against the client on the UI-affinity queue unless the
// browser was closed in the meantime.
func (b *Browser) post(fn func(c engine.Client)) {
	if b.closed.Load() {
		return
	}
	ok := b.engine.queue.Post(func() {
		if b.closed.Load() {
			return
		}
		fn(b.client)
	})
	if !ok {
		b.logger.Debug("Dropped browser event, queue unavailable")
	}
}

func (b *Browser) postPaint(buffer []byte, width, height int) {
	dirty := []engine.Rect{{Width: width, Height: height}}
	b.post(func(c engine.Client) {
		c.OnPaint(b, engine.PaintView, dirty, buffer, width, height)
	})
}

func (b *Browser) postConsole(level engine.LogSeverity, message, source string, line int) {
	b.post(func(c engine.Client) {
		c.OnConsoleMessage(b, level, message, source, line)
	})
}

func (b *Browser) postLoadEnd(ref *frameRef, status int) {
	if ref.main {
		b.mu.Lock()
		b.main = ref
		b.mu.Unlock()
	}
	b.post(func(c engine.Client) {
		c.OnLoadEnd(b, ref, status)
	})
}

func (b *Browser) postPopup(ref *frameRef, target string) {
	b.post(func(c engine.Client) {
		if !c.OnBeforePopup(b, ref, target) {
			b.logger.Debug("Popup allowed but windowless browsers cannot open it", zap.String("url", target))
		}
	})
}

func (b *Browser) postContextMenu(ref *frameRef) {
	b.post(func(c engine.Client) {
		model := newMenuModel()
		c.OnBeforeContextMenu(b, ref, model)
		if model.Count() > 0 {
			b.logger.Debug("Context menu suppressed", zap.Int("items", model.Count()))
		}
	})
}

// menuModel is the default page context menu.
type menuModel struct {
	items []string
}

func newMenuModel() *menuModel {
	return &menuModel{items: []string{"Back", "Forward", "Reload", "Print", "View Source"}}
}

func (m *menuModel) Clear()     { m.items = nil }
func (m *menuModel) Count() int { return len(m.items) }

// frameRef is the browser-role handle of a frame. It stays valid only for
// the load that produced it.
type frameRef struct {
	browser *Browser
	index   int
	main    bool
	url     string
	gen     int
}

var _ engine.Frame = (*frameRef)(nil)

func (f *frameRef) IsMain() bool { return f.main }
func (f *frameRef) URL() string  { return f.url }

func (f *frameRef) ExecuteJavaScript(code, scriptURL string, line int) {
	f.browser.toRenderer(func(r *renderer) { r.executeJavaScript(f, code, scriptURL, line) })
}

// browserHost implements engine.BrowserHost. Input and view changes are
// handed to the renderer goroutine.
type browserHost struct {
	b *Browser
}

var _ engine.BrowserHost = (*browserHost)(nil)

func (h *browserHost) Client() engine.Client { return h.b.client }

func (h *browserHost) WasResized() {
	rect := h.b.client.GetViewRect(h.b)
	h.b.toRenderer(func(r *renderer) { r.resize(rect.Width, rect.Height) })
}

func (h *browserHost) WasHidden(hidden bool) {
	h.b.toRenderer(func(r *renderer) { r.setHidden(hidden) })
}

func (h *browserHost) Invalidate(engine.PaintElementType) {
	h.b.toRenderer(func(r *renderer) { r.markDirty() })
}

func (h *browserHost) SendMouseClickEvent(ev engine.MouseEvent, button engine.MouseButton, mouseUp bool, clickCount int) {
	h.b.toRenderer(func(r *renderer) { r.mouseClick(ev, button, mouseUp, clickCount) })
}

func (h *browserHost) SendMouseMoveEvent(ev engine.MouseEvent, mouseLeave bool) {
	h.b.toRenderer(func(r *renderer) { r.mouseMove(ev, mouseLeave) })
}

func (h *browserHost) SendMouseWheelEvent(ev engine.MouseEvent, deltaX, deltaY int) {
	h.b.toRenderer(func(r *renderer) { r.mouseWheel(ev, deltaX, deltaY) })
}

func (h *browserHost) SendKeyEvent(ev engine.KeyEvent) {
	h.b.toRenderer(func(r *renderer) { r.key(ev) })
}

func (h *browserHost) SetFocus(focus bool) {
	h.b.toRenderer(func(r *renderer) { r.setFocus(focus) })
}

func (h *browserHost) SetAudioMuted(muted bool) {
	h.b.muted.Store(muted)
}

func (h *browserHost) CloseBrowser(bool) {
	h.b.engine.closeBrowser(h.b)
}

func (h *browserHost) SendProcessMessage(target engine.ProcessID, msg *envelope.Message) error {
	if h.b.closed.Load() {
		return envelope.ErrClosed
	}
	if target != engine.PIDRenderer {
		return errNotRenderer
	}
	return h.b.pipe.Send(msg)
}
