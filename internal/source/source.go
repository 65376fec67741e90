package source

import (
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
	"github.com/GriffinCanCode/browser-source/internal/bridge/render"
	"github.com/GriffinCanCode/browser-source/internal/engine"
	"github.com/GriffinCanCode/browser-source/internal/host"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/browser-source/internal/shared/id"
)

// Page events broadcast on visibility and activity changes.
const (
	EventVisibleChanged = "obsSourceVisibleChanged"
	EventActiveChanged  = "obsSourceActiveChanged"
)

const defaultFontSize = 16

// Executor runs tasks on the UI-affinity goroutine. *engine.Manager
// implements it.
type Executor interface {
	QueueTask(task engine.Task) bool
	QueueTaskSync(task engine.Task) bool
	Engine() engine.Engine
}

var _ Executor = (*engine.Manager)(nil)

// Options are shared by every source of a plugin.
type Options struct {
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
	Graphics  host.Graphics
	Audio     host.AudioOutput
	AudioInfo host.AudioInfo
	Functions map[string]render.Function
	// CanvasFPS is used when a source has no custom frame rate.
	CanvasFPS int
}

// Source is one browser-backed video source. Browser mutation always happens
// on the executor; the source itself may be driven from any goroutine.
type Source struct {
	id      id.SourceID
	name    string
	exec    Executor
	opts    Options
	logger  *zap.Logger
	metrics *monitoring.Metrics
	surface *render.Surface

	destroying atomic.Bool

	// mu guards configuration and lifecycle flags. It is never held while
	// waiting on the executor.
	mu            sync.Mutex
	settings      Settings
	url           string
	initialized   bool
	createPending bool
	generation    uint64
	showing       bool
	active        bool
	unregister    func()

	browserMu sync.Mutex
	browser   engine.Browser
	client    *render.Client

	creations   atomic.Int64
	recreations atomic.Int64
}

// NewSource creates an idle source. The first Update configures it.
func NewSource(name string, exec Executor, opts Options) *Source {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	sid := id.NewSourceID()
	logger := opts.Logger.Named("source").With(
		zap.String("source_id", sid.String()),
		zap.String("source", name),
	)
	return &Source{
		id:       sid,
		name:     name,
		exec:     exec,
		opts:     opts,
		logger:   logger,
		metrics:  opts.Metrics,
		surface:  render.NewSurface(opts.Graphics, opts.Metrics, logger),
		settings: DefaultSettings(),
	}
}

func (s *Source) ID() id.SourceID { return s.id }

func (s *Source) Name() string { return s.name }

func (s *Source) Destroying() bool { return s.destroying.Load() }

func (s *Source) Surface() *render.Surface { return s.surface }

func (s *Source) CSS() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.CSS
}

func (s *Source) ViewSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Width, s.settings.Height
}

func (s *Source) Width() int {
	w, _ := s.ViewSize()
	return w
}

func (s *Source) Height() int {
	_, h := s.ViewSize()
	return h
}

// AudioOutput returns the host audio sink when the page's audio is rerouted.
func (s *Source) AudioOutput() host.AudioOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.settings.RerouteAudio {
		return nil
	}
	return s.opts.Audio
}

func (s *Source) Info() render.SourceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return render.SourceInfo{
		Name:    s.name,
		Width:   s.settings.Width,
		Height:  s.settings.Height,
		Visible: s.showing,
		Active:  s.active,
		URL:     s.url,
	}
}

// Settings returns the current configuration.
func (s *Source) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// URL returns the URL the browser loads.
func (s *Source) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *Source) Properties() []Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Properties(s.settings, s.url)
}

// Creations counts browsers created for this source.
func (s *Source) Creations() int64 { return s.creations.Load() }

// Recreations counts updates that tore the browser down.
func (s *Source) Recreations() int64 { return s.recreations.Load() }

// Browser returns the live browser, or nil.
func (s *Source) Browser() engine.Browser {
	s.browserMu.Lock()
	defer s.browserMu.Unlock()
	return s.browser
}

func (s *Source) setUnregister(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregister = fn
}

// ExecuteOnBrowser runs fn with the live browser on the executor. The async
// form captures the browser now and does nothing when there is none. The
// sync form waits for fn and reports false when the task could not be
// posted. It must not be called from the executor goroutine.
func (s *Source) ExecuteOnBrowser(fn func(b engine.Browser), async bool) bool {
	if !async {
		return s.exec.QueueTaskSync(func() {
			if b := s.Browser(); b != nil {
				fn(b)
			}
		})
	}

	b := s.Browser()
	if b == nil {
		return false
	}
	return s.exec.QueueTask(func() { fn(b) })
}

// Update applies settings. Size-only changes resize the live browser; any
// other change tears it down and flags a new one for the next Tick.
func (s *Source) Update(next Settings) {
	if s.destroying.Load() {
		return
	}
	next = next.Normalize()

	s.mu.Lock()
	if s.initialized && !s.settings.requiresRecreate(next) {
		if !s.settings.sizeChanged(next) {
			s.mu.Unlock()
			return
		}
		s.settings = next
		s.mu.Unlock()

		s.ExecuteOnBrowser(func(b engine.Browser) {
			b.Host().WasResized()
			b.Host().Invalidate(engine.PaintView)
		}, true)
		return
	}

	recreate := s.initialized
	s.initialized = true
	s.settings = next
	s.url = next.ResolveURL()
	s.restartLocked()
	s.mu.Unlock()

	s.surface.Release()
	if recreate {
		s.recreations.Add(1)
		s.metrics.IncBrowserRecreations()
		s.logger.Debug("Browser scheduled for recreation", zap.String("url", next.ResolveURL()))
	}
}

// restartLocked closes the browser and flags a new one unless the source is
// shut down while hidden. s.mu must be held.
func (s *Source) restartLocked() {
	s.destroyBrowserLocked()
	s.createPending = !s.settings.Shutdown || s.showing
}

// destroyBrowserLocked detaches and closes the live browser and invalidates
// any queued creation. s.mu must be held.
func (s *Source) destroyBrowserLocked() {
	s.generation++

	s.browserMu.Lock()
	b, c := s.browser, s.client
	s.browser, s.client = nil, nil
	s.browserMu.Unlock()

	if b == nil {
		return
	}
	if c != nil {
		c.Detach()
	}
	if !s.exec.QueueTask(func() { closeBrowser(b) }) {
		s.logger.Warn("Failed to queue browser close")
	}
}

// DestroyBrowser closes the live browser without flagging a new one.
func (s *Source) DestroyBrowser() {
	s.mu.Lock()
	s.destroyBrowserLocked()
	s.createPending = false
	s.mu.Unlock()
}

func closeBrowser(b engine.Browser) {
	b.Host().WasHidden(true)
	b.Host().CloseBrowser(true)
}

// Tick posts a pending browser creation. The flag is cleared only once the
// task is queued.
func (s *Source) Tick() {
	if s.destroying.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.createPending {
		return
	}
	gen := s.generation
	if s.exec.QueueTask(func() { s.createBrowser(gen) }) {
		s.createPending = false
	}
}

// createBrowser runs on the executor. A creation superseded by a later
// Update, hide or Destroy is dropped.
func (s *Source) createBrowser(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.destroying.Load() {
		s.mu.Unlock()
		return
	}
	settings := s.settings
	url := s.url
	s.mu.Unlock()

	eng := s.exec.Engine()
	if eng == nil {
		s.logger.Error("Engine unavailable, browser not created")
		return
	}

	client := render.NewClient(s, render.Options{
		Logger:    s.logger,
		Metrics:   s.metrics,
		Audio:     s.opts.AudioInfo,
		Functions: s.opts.Functions,
	})
	info := engine.WindowInfo{
		Width:      settings.Width,
		Height:     settings.Height,
		Windowless: true,
	}
	browserSettings := engine.BrowserSettings{
		FrameRate:            settings.FrameRate(s.opts.CanvasFPS),
		DefaultFontSize:      defaultFontSize,
		DefaultFixedFontSize: defaultFontSize,
	}

	b, err := eng.CreateBrowserSync(info, client, url, browserSettings)
	if err != nil {
		client.Detach()
		s.logger.Error("Failed to create browser", zap.String("url", url), zap.Error(err))
		return
	}

	s.mu.Lock()
	stale := gen != s.generation || s.destroying.Load()
	if !stale {
		s.browserMu.Lock()
		s.browser, s.client = b, client
		s.browserMu.Unlock()
	}
	showing := s.showing
	s.mu.Unlock()

	if stale {
		client.Detach()
		closeBrowser(b)
		return
	}

	s.creations.Add(1)
	s.metrics.IncBrowsersCreated()
	s.logger.Info("Browser created", zap.Int("browser_id", b.ID()), zap.String("url", url))

	b.Host().SetAudioMuted(true)
	s.sendBrowserVisibility(b, showing)
}

// sendBrowserVisibility updates the host view state and tells the page.
// Runs on the executor.
func (s *Source) sendBrowserVisibility(b engine.Browser, visible bool) {
	h := b.Host()
	if visible {
		h.WasResized()
		h.WasHidden(false)
		h.Invalidate(engine.PaintView)
	} else {
		h.WasHidden(true)
	}
	s.send(b, envelope.NewVisibility(visible))
}

func (s *Source) send(b engine.Browser, msg *envelope.Message) {
	if err := b.Host().SendProcessMessage(engine.PIDRenderer, msg); err != nil {
		s.logger.Warn("Failed to send message", zap.String("message", msg.Name), zap.Error(err))
		return
	}
	s.metrics.RecordEnvelope("sent", msg.Name)
}

// Render draws the current frame at x, y. The caller holds the graphics
// context.
func (s *Source) Render(x, y int) bool {
	if s.destroying.Load() {
		return false
	}
	w, h := s.ViewSize()
	return s.surface.Draw(x, y, w, h)
}

func (s *Source) Show() { s.SetShowing(true) }

func (s *Source) Hide() { s.SetShowing(false) }

// SetShowing applies a visibility change. With shutdown-on-invisible the
// browser is torn down on hide and recreated on show.
func (s *Source) SetShowing(showing bool) {
	if s.destroying.Load() {
		return
	}

	s.mu.Lock()
	s.showing = showing
	if s.settings.Shutdown {
		if showing {
			s.restartLocked()
		} else {
			s.destroyBrowserLocked()
			s.createPending = false
		}
		s.mu.Unlock()
		s.surface.Release()
		return
	}
	s.mu.Unlock()

	s.ExecuteOnBrowser(func(b engine.Browser) {
		s.sendBrowserVisibility(b, showing)
	}, true)
	s.DispatchJSEvent(EventVisibleChanged, flagPayload("visible", showing))

	if !showing {
		s.surface.Release()
	}
}

// SetActive tells the page whether the source is on the program output.
func (s *Source) SetActive(active bool) {
	if s.destroying.Load() {
		return
	}
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()

	s.ExecuteOnBrowser(func(b engine.Browser) {
		s.send(b, envelope.NewActive(active))
	}, true)
	s.DispatchJSEvent(EventActiveChanged, flagPayload("active", active))
}

// Activate reloads the page first when restart_when_active is set.
func (s *Source) Activate() {
	s.mu.Lock()
	restart := s.settings.RestartWhenActive
	s.mu.Unlock()

	if restart {
		s.Refresh()
	}
	s.SetActive(true)
}

func (s *Source) Deactivate() { s.SetActive(false) }

// Refresh reloads the page ignoring the cache.
func (s *Source) Refresh() {
	s.ExecuteOnBrowser(func(b engine.Browser) {
		b.ReloadIgnoreCache()
	}, true)
}

func flagPayload(key string, value bool) string {
	payload, err := sonic.MarshalString(map[string]bool{key: value})
	if err != nil {
		return "null"
	}
	return payload
}

// DispatchJSEvent broadcasts a page event to every frame of this source's
// browser.
func (s *Source) DispatchJSEvent(eventName, jsonString string) bool {
	if s.destroying.Load() {
		return false
	}
	return s.ExecuteOnBrowser(func(b engine.Browser) {
		s.send(b, envelope.NewDispatchJSEvent(eventName, jsonString))
	}, true)
}

// HandleJavaScriptEvent forwards an external notification. Events without a
// name are ignored and a missing payload becomes null.
func (s *Source) HandleJavaScriptEvent(eventName, jsonString string) {
	if eventName == "" {
		return
	}
	if jsonString == "" {
		jsonString = "null"
	}
	s.DispatchJSEvent(eventName, jsonString)
}

func (s *Source) SendMouseClick(ev engine.MouseEvent, button engine.MouseButton, mouseUp bool, clickCount int) {
	s.ExecuteOnBrowser(func(b engine.Browser) {
		b.Host().SendMouseClickEvent(ev, button, mouseUp, clickCount)
	}, true)
}

func (s *Source) SendMouseMove(ev engine.MouseEvent, mouseLeave bool) {
	s.ExecuteOnBrowser(func(b engine.Browser) {
		b.Host().SendMouseMoveEvent(ev, mouseLeave)
	}, true)
}

func (s *Source) SendMouseWheel(ev engine.MouseEvent, deltaX, deltaY int) {
	s.ExecuteOnBrowser(func(b engine.Browser) {
		b.Host().SendMouseWheelEvent(ev, deltaX, deltaY)
	}, true)
}

func (s *Source) SendFocus(focus bool) {
	s.ExecuteOnBrowser(func(b engine.Browser) {
		b.Host().SetFocus(focus)
	}, true)
}

// SendKeyClick forwards a key press. A press carrying text is followed by a
// character event.
func (s *Source) SendKeyClick(key KeyInput, keyUp bool) {
	if s.destroying.Load() {
		return
	}

	ev := engine.KeyEvent{
		Type:           engine.KeyRawDown,
		Modifiers:      key.Modifiers,
		WindowsKeyCode: key.NativeVKey,
	}
	if keyUp {
		ev.Type = engine.KeyUp
	}
	if key.Text != "" {
		if r, _ := utf8.DecodeRuneInString(key.Text); r != utf8.RuneError {
			ev.Character = r
		}
	}

	s.ExecuteOnBrowser(func(b engine.Browser) {
		b.Host().SendKeyEvent(ev)
		if key.Text != "" && !keyUp {
			char := ev
			char.Type = engine.KeyChar
			char.NativeKeyCode = key.NativeScancode
			b.Host().SendKeyEvent(char)
		}
	}, true)
}

// Destroy marks the source destroying, releases its textures, unregisters it
// and defers the browser release onto the executor.
func (s *Source) Destroy() {
	if !s.destroying.CompareAndSwap(false, true) {
		return
	}
	s.surface.Close()

	s.mu.Lock()
	s.generation++
	s.createPending = false
	unregister := s.unregister
	s.unregister = nil
	s.mu.Unlock()

	if unregister != nil {
		unregister()
	}

	if !s.exec.QueueTask(s.release) {
		s.logger.Warn("Failed to queue source release")
		s.browserMu.Lock()
		if s.client != nil {
			s.client.Detach()
		}
		s.browser, s.client = nil, nil
		s.browserMu.Unlock()
		return
	}
	s.logger.Debug("Source destroyed")
}

// release runs on the executor after Destroy.
func (s *Source) release() {
	s.browserMu.Lock()
	b, c := s.browser, s.client
	s.browser, s.client = nil, nil
	s.browserMu.Unlock()

	if c != nil {
		c.Detach()
	}
	if b != nil {
		closeBrowser(b)
	}
}
