package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
	"github.com/GriffinCanCode/browser-source/internal/engine"
	"github.com/GriffinCanCode/browser-source/internal/scheme"
)

var (
	ErrScriptTimeout = errors.New("script execution timeout")
	errWrongTarget   = errors.New("renderer can only message the browser role")
)

// mailbox is an unbounded FIFO feeding the render goroutine. Pushing never
// blocks, so the UI-affinity queue is never held up by a busy page.
type mailbox struct {
	mu     sync.Mutex
	items  []func()
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) push(fn func()) {
	m.mu.Lock()
	m.items = append(m.items, fn)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

// scriptContext is the goja runtime of one frame.
type scriptContext struct {
	rt      *goja.Runtime
	frame   *frame
	timeout time.Duration
}

func (c *scriptContext) Runtime() *goja.Runtime      { return c.rt }
func (c *scriptContext) Frame() engine.RenderFrame { return c.frame }

func (c *scriptContext) Eval(src string) (goja.Value, error) {
	return c.run(func() (goja.Value, error) { return c.rt.RunString(src) })
}

func (c *scriptContext) evalScript(name, src string) (goja.Value, error) {
	return c.run(func() (goja.Value, error) { return c.rt.RunScript(name, src) })
}

func (c *scriptContext) Call(fn goja.Callable, this goja.Value, args ...goja.Value) (goja.Value, error) {
	return c.run(func() (goja.Value, error) { return fn(this, args...) })
}

// run bounds one evaluation by the script timeout.
func (c *scriptContext) run(fn func() (goja.Value, error)) (goja.Value, error) {
	if c.timeout > 0 {
		timer := time.AfterFunc(c.timeout, func() { c.rt.Interrupt(ErrScriptTimeout) })
		defer func() {
			if timer.Stop() {
				return
			}
			c.rt.ClearInterrupt()
		}()
	}
	return fn()
}

// frame is the renderer-role view of a frame.
type frame struct {
	index int
	main  bool
	url   string
	root  *html.Node
	doc   *document
	ctx   *scriptContext
	ref   *frameRef
}

func (f *frame) IsMain() bool { return f.main }
func (f *frame) URL() string  { return f.url }

func (f *frame) Context() engine.ScriptContext {
	if f.ctx == nil {
		return nil
	}
	return f.ctx
}

type pageTimer struct {
	frame *frame
	fn    goja.Callable
	code  string
	args  []goja.Value
	timer *time.Timer
}

// renderer is the renderer role of one browser. Everything except the
// mailbox and interruptAll runs on its own goroutine.
type renderer struct {
	browser *Browser
	handler engine.RenderProcessHandler
	pipe    envelope.Transport
	fetcher *Fetcher
	painter *painter
	logger  *zap.Logger
	timeout time.Duration
	ctx     context.Context

	mail *mailbox

	framesMu sync.Mutex
	frames   []*frame

	url       string
	loadGen   int
	timers    map[int]*pageTimer
	nextTimer int

	width, height int
	fps           int
	hidden        bool
	dirty         bool
	focused       bool
}

var _ engine.RenderBrowser = (*renderer)(nil)

func (r *renderer) ID() int { return r.browser.id }

func (r *renderer) MainFrame() engine.RenderFrame {
	if f := r.mainFrame(); f != nil {
		return f
	}
	return nil
}

func (r *renderer) Frames() []engine.RenderFrame {
	r.framesMu.Lock()
	defer r.framesMu.Unlock()
	out := make([]engine.RenderFrame, len(r.frames))
	for i, f := range r.frames {
		out[i] = f
	}
	return out
}

func (r *renderer) SendProcessMessage(target engine.ProcessID, msg *envelope.Message) error {
	if target != engine.PIDBrowser {
		return errWrongTarget
	}
	return r.pipe.Send(msg)
}

func (r *renderer) mainFrame() *frame {
	r.framesMu.Lock()
	defer r.framesMu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[0]
}

func (r *renderer) frameAt(index int) *frame {
	r.framesMu.Lock()
	defer r.framesMu.Unlock()
	if index < 0 || index >= len(r.frames) {
		return nil
	}
	return r.frames[index]
}

func (r *renderer) run(url string) {
	defer r.teardown()
	stop := context.AfterFunc(r.ctx, r.interruptAll)
	defer stop()

	go r.receive()
	r.load(url)

	ticker := time.NewTicker(time.Second / time.Duration(r.fps))
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.mail.notify:
			for _, fn := range r.mail.take() {
				if r.ctx.Err() != nil {
					return
				}
				fn()
			}
		case <-ticker.C:
			r.paint()
		}
	}
}

func (r *renderer) receive() {
	for {
		msg, err := r.pipe.Receive(r.ctx)
		if err != nil {
			return
		}
		r.mail.push(func() { r.handleMessage(msg) })
	}
}

func (r *renderer) handleMessage(msg *envelope.Message) {
	if r.handler == nil {
		return
	}
	main := r.mainFrame()
	var f engine.RenderFrame
	if main != nil {
		f = main
	}
	if !r.handler.OnProcessMessageReceived(r, f, engine.PIDBrowser, msg) {
		r.logger.Debug("Unhandled message", zap.String("name", msg.Name))
	}
}

func (r *renderer) interruptAll() {
	r.framesMu.Lock()
	defer r.framesMu.Unlock()
	for _, f := range r.frames {
		if f.ctx != nil {
			f.ctx.rt.Interrupt("browser closed")
		}
	}
}

func (r *renderer) teardown() {
	r.releaseFrames()
}

// load replaces the page with url, creating the main frame and one frame
// per iframe.
func (r *renderer) load(url string) {
	r.releaseFrames()
	r.url = url
	r.loadGen++

	doc, err := r.fetcher.Fetch(r.ctx, url)
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		status := 0
		if doc != nil {
			status = doc.Status
		}
		r.console(engine.LogError, "Failed to load "+url+": "+err.Error(), url, 0)
		doc = &Document{URL: url, Status: status, Body: blankHTML}
	}

	main := r.newFrame(true, doc.URL, doc.Body)
	if !r.attach(main) {
		return
	}

	for _, node := range main.doc.findAll("//iframe") {
		if r.ctx.Err() != nil {
			return
		}
		url, body := r.iframeSource(main, node)
		r.attach(r.newFrame(false, url, body))
	}

	r.dirty = true
	r.framesMu.Lock()
	frames := append([]*frame(nil), r.frames...)
	r.framesMu.Unlock()
	for _, f := range frames {
		r.browser.postLoadEnd(f.ref, doc.Status)
	}
}

func (r *renderer) iframeSource(parent *frame, node *html.Node) (string, string) {
	if srcdoc, ok := attr(node, "srcdoc"); ok {
		return "about:srcdoc", srcdoc
	}
	src, _ := attr(node, "src")
	if src == "" {
		return BlankURL, blankHTML
	}
	resolved, err := scheme.Resolve(parent.url, src)
	if err != nil {
		return src, blankHTML
	}
	doc, err := r.fetcher.Fetch(r.ctx, resolved)
	if err != nil {
		r.console(engine.LogError, "Failed to load "+resolved+": "+err.Error(), parent.url, 0)
		return resolved, blankHTML
	}
	return resolved, doc.Body
}

func (r *renderer) newFrame(main bool, url, body string) *frame {
	root, err := parseHTML(body)
	if err != nil {
		root, _ = parseHTML(blankHTML)
	}
	f := &frame{main: main, url: url, root: root}
	f.ref = &frameRef{browser: r.browser, main: main, url: url, gen: r.loadGen}
	return f
}

// attach creates the frame's script context, publishes the frame and runs
// its scripts.
func (r *renderer) attach(f *frame) bool {
	if err := r.createContext(f); err != nil {
		r.logger.Warn("Failed to create script context", zap.String("url", f.url), zap.Error(err))
		return false
	}

	r.framesMu.Lock()
	f.index = len(r.frames)
	f.ref.index = f.index
	r.frames = append(r.frames, f)
	r.framesMu.Unlock()

	if r.handler != nil {
		r.handler.OnContextCreated(r, f, f.ctx)
	}
	r.runScripts(f)
	return true
}

func (r *renderer) createContext(f *frame) error {
	rt := goja.New()
	ctx := &scriptContext{rt: rt, frame: f, timeout: r.timeout}

	if err := r.installConsole(rt, f); err != nil {
		return err
	}
	if _, err := rt.RunString(prelude); err != nil {
		return fmt.Errorf("prelude: %w", err)
	}
	if err := r.installTimers(rt, f); err != nil {
		return err
	}
	if err := rt.Set("open", func(call goja.FunctionCall) goja.Value {
		r.browser.postPopup(f.ref, call.Argument(0).String())
		return goja.Null()
	}); err != nil {
		return err
	}
	_ = rt.Set("innerWidth", r.width)
	_ = rt.Set("innerHeight", r.height)

	f.doc = newDocument(rt, f.root, f.url, r.markDirty)
	if err := f.doc.install(); err != nil {
		return fmt.Errorf("document: %w", err)
	}
	f.ctx = ctx
	return nil
}

var consoleLevels = map[string]engine.LogSeverity{
	"log":   engine.LogInfo,
	"info":  engine.LogInfo,
	"debug": engine.LogVerbose,
	"warn":  engine.LogWarning,
	"error": engine.LogError,
}

func (r *renderer) installConsole(rt *goja.Runtime, f *frame) error {
	console := rt.NewObject()
	for name, level := range consoleLevels {
		level := level
		if err := console.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			r.console(level, strings.Join(parts, " "), f.url, 0)
			return goja.Undefined()
		}); err != nil {
			return err
		}
	}
	return rt.Set("console", console)
}

func (r *renderer) installTimers(rt *goja.Runtime, f *frame) error {
	if err := rt.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		t := &pageTimer{frame: f}
		if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
			t.fn = fn
		} else {
			t.code = call.Argument(0).String()
		}
		if len(call.Arguments) > 2 {
			t.args = append([]goja.Value(nil), call.Arguments[2:]...)
		}
		delay := call.Argument(1).ToInteger()
		if delay < 0 {
			delay = 0
		}

		r.nextTimer++
		id := r.nextTimer
		r.timers[id] = t
		t.timer = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
			r.mail.push(func() { r.fireTimer(id) })
		})
		return rt.ToValue(id)
	}); err != nil {
		return err
	}

	return rt.Set("clearTimeout", func(call goja.FunctionCall) goja.Value {
		id := int(call.Argument(0).ToInteger())
		if t, ok := r.timers[id]; ok {
			t.timer.Stop()
			delete(r.timers, id)
		}
		return goja.Undefined()
	})
}

func (r *renderer) fireTimer(id int) {
	t, ok := r.timers[id]
	if !ok {
		return
	}
	delete(r.timers, id)

	var err error
	if t.fn != nil {
		_, err = t.frame.ctx.Call(t.fn, goja.Undefined(), t.args...)
	} else {
		_, err = t.frame.ctx.Eval(t.code)
	}
	if err != nil {
		r.reportError(t.frame, err)
	}
}

func (r *renderer) stopTimers() {
	for id, t := range r.timers {
		t.timer.Stop()
		delete(r.timers, id)
	}
}

func (r *renderer) runScripts(f *frame) {
	for _, node := range f.doc.findAll("//script") {
		if r.ctx.Err() != nil {
			return
		}
		if typ, ok := attr(node, "type"); ok && !isJavaScript(typ) {
			continue
		}

		name, code := f.url, htmlquery.InnerText(node)
		if src, ok := attr(node, "src"); ok && src != "" {
			resolved, err := scheme.Resolve(f.url, src)
			if err != nil {
				continue
			}
			doc, err := r.fetcher.Fetch(r.ctx, resolved)
			if err != nil {
				r.console(engine.LogError, "Failed to load script "+resolved+": "+err.Error(), f.url, 0)
				continue
			}
			name, code = resolved, doc.Body
		}

		if _, err := f.ctx.evalScript(name, code); err != nil {
			r.reportError(f, err)
		}
	}
}

func isJavaScript(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "module":
		return true
	}
	return false
}

// reportError relays an uncaught script error to the page console.
func (r *renderer) reportError(f *frame, err error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if r.ctx.Err() != nil {
			return
		}
		r.console(engine.LogError, "Script interrupted: "+fmt.Sprint(interrupted.Value()), f.url, 0)
		return
	}

	message := err.Error()
	var exc *goja.Exception
	if errors.As(err, &exc) && exc.Value() != nil {
		message = exc.Value().String()
	}
	r.console(engine.LogError, "Uncaught "+message, f.url, 0)
}

func (r *renderer) console(level engine.LogSeverity, message, source string, line int) {
	r.browser.postConsole(level, message, source, line)
}

func (r *renderer) releaseFrames() {
	r.stopTimers()

	r.framesMu.Lock()
	frames := r.frames
	r.frames = nil
	r.framesMu.Unlock()

	if r.handler == nil {
		return
	}
	for _, f := range frames {
		if f.ctx != nil {
			r.handler.OnContextReleased(r, f, f.ctx)
		}
	}
}

func (r *renderer) reload() {
	r.load(r.url)
}

// executeJavaScript evaluates code in the frame ref addresses. Refs from an
// earlier load are dropped.
func (r *renderer) executeJavaScript(ref *frameRef, code, scriptURL string, line int) {
	if ref.gen != r.loadGen {
		return
	}
	f := r.frameAt(ref.index)
	if f == nil || f.ctx == nil {
		return
	}
	if scriptURL == "" {
		scriptURL = f.url
	}
	if _, err := f.ctx.evalScript(scriptURL, code); err != nil {
		r.reportError(f, err)
	}
}

func (r *renderer) markDirty() {
	r.dirty = true
}

func (r *renderer) resize(width, height int) {
	if width <= 0 || height <= 0 || (width == r.width && height == r.height) {
		return
	}
	r.width, r.height = width, height
	r.dirty = true
	if f := r.mainFrame(); f != nil && f.ctx != nil {
		_ = f.ctx.rt.Set("innerWidth", width)
		_ = f.ctx.rt.Set("innerHeight", height)
	}
	r.dispatch("resize", nil)
}

func (r *renderer) setHidden(hidden bool) {
	r.hidden = hidden
	if !hidden {
		r.dirty = true
	}
}

func (r *renderer) setFocus(focus bool) {
	if focus == r.focused {
		return
	}
	r.focused = focus
	if focus {
		r.dispatch("focus", nil)
	} else {
		r.dispatch("blur", nil)
	}
}

var mouseButtons = map[engine.MouseButton]int{
	engine.MouseLeft:   0,
	engine.MouseMiddle: 1,
	engine.MouseRight:  2,
}

func mouseProps(ev engine.MouseEvent) map[string]interface{} {
	return map[string]interface{}{
		"clientX":   ev.X,
		"clientY":   ev.Y,
		"modifiers": ev.Modifiers,
	}
}

func (r *renderer) mouseClick(ev engine.MouseEvent, button engine.MouseButton, up bool, clicks int) {
	props := mouseProps(ev)
	props["button"] = mouseButtons[button]
	props["detail"] = clicks

	if !up {
		r.dispatch("mousedown", props)
		return
	}
	r.dispatch("mouseup", props)
	if button == engine.MouseRight {
		if r.dispatch("contextmenu", props) {
			if f := r.mainFrame(); f != nil {
				r.browser.postContextMenu(f.ref)
			}
		}
		return
	}
	r.dispatch("click", props)
}

func (r *renderer) mouseMove(ev engine.MouseEvent, leave bool) {
	if leave {
		r.dispatch("mouseleave", mouseProps(ev))
		return
	}
	r.dispatch("mousemove", mouseProps(ev))
}

func (r *renderer) mouseWheel(ev engine.MouseEvent, dx, dy int) {
	props := mouseProps(ev)
	props["deltaX"] = dx
	props["deltaY"] = dy
	r.dispatch("wheel", props)
}

func (r *renderer) key(ev engine.KeyEvent) {
	props := map[string]interface{}{
		"keyCode":   ev.WindowsKeyCode,
		"which":     ev.WindowsKeyCode,
		"modifiers": ev.Modifiers,
	}
	if ev.Character != 0 {
		props["key"] = string(ev.Character)
	}

	switch ev.Type {
	case engine.KeyRawDown, engine.KeyDown:
		r.dispatch("keydown", props)
	case engine.KeyUp:
		r.dispatch("keyup", props)
	case engine.KeyChar:
		r.dispatch("keypress", props)
	}
}

// dispatch fires an Event of typ on the main frame's window and reports
// whether the default action should run.
func (r *renderer) dispatch(typ string, props map[string]interface{}) bool {
	f := r.mainFrame()
	if f == nil || f.ctx == nil {
		return true
	}
	rt := f.ctx.rt

	ctor, ok := goja.AssertConstructor(rt.Get("Event"))
	if !ok {
		return true
	}
	dispatch, ok := goja.AssertFunction(rt.Get("dispatchEvent"))
	if !ok {
		return true
	}

	var result goja.Value
	_, err := f.ctx.run(func() (goja.Value, error) {
		event, err := ctor(nil, rt.ToValue(typ))
		if err != nil {
			return nil, err
		}
		for k, v := range props {
			_ = event.Set(k, v)
		}
		result, err = dispatch(rt.GlobalObject(), event)
		return result, err
	})
	if err != nil {
		r.reportError(f, err)
		return true
	}
	return result == nil || result.ToBoolean()
}

func (r *renderer) paint() {
	if !r.dirty || r.hidden || r.width <= 0 || r.height <= 0 {
		return
	}
	r.dirty = false

	var root *html.Node
	if f := r.mainFrame(); f != nil {
		root = f.root
	}
	buffer := r.painter.Paint(root, r.width, r.height)
	r.browser.postPaint(buffer, r.width, r.height)
}
