package headless

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
	"github.com/GriffinCanCode/browser-source/internal/bridge/render"
	"github.com/GriffinCanCode/browser-source/internal/bridge/script"
	"github.com/GriffinCanCode/browser-source/internal/engine"
	"github.com/GriffinCanCode/browser-source/internal/scheme"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type loadEvent struct {
	url    string
	main   bool
	status int
}

// recordingClient answers every allowlisted invocation with reply.
type recordingClient struct {
	width, height int
	reply         string

	mu        sync.Mutex
	loads     []loadEvent
	console   []string
	paints    int
	lastPaint []byte
	popups    []string
	menus     int
	messages  []string
}

var _ engine.Client = (*recordingClient)(nil)

func newRecordingClient() *recordingClient {
	return &recordingClient{width: 64, height: 48, reply: "null"}
}

func (c *recordingClient) GetViewRect(engine.Browser) engine.Rect {
	return engine.Rect{Width: c.width, Height: c.height}
}

func (c *recordingClient) OnPaint(_ engine.Browser, _ engine.PaintElementType, _ []engine.Rect, buffer []byte, _, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paints++
	c.lastPaint = buffer
}

func (c *recordingClient) GetAudioParameters(engine.Browser, *engine.AudioParameters) bool { return false }
func (c *recordingClient) OnAudioStreamStarted(engine.Browser, engine.AudioParameters, int) {}
func (c *recordingClient) OnAudioStreamPacket(engine.Browser, [][]float32, int, int64)     {}
func (c *recordingClient) OnAudioStreamStopped(engine.Browser)                             {}
func (c *recordingClient) OnAudioStreamError(engine.Browser, string)                       {}

func (c *recordingClient) OnLoadEnd(_ engine.Browser, f engine.Frame, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads = append(c.loads, loadEvent{url: f.URL(), main: f.IsMain(), status: status})
}

func (c *recordingClient) OnConsoleMessage(_ engine.Browser, _ engine.LogSeverity, message, _ string, _ int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = append(c.console, message)
	return false
}

func (c *recordingClient) OnBeforePopup(_ engine.Browser, _ engine.Frame, target string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.popups = append(c.popups, target)
	return true
}

func (c *recordingClient) OnBeforeContextMenu(_ engine.Browser, _ engine.Frame, model engine.MenuModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.menus++
	model.Clear()
}

func (c *recordingClient) OnProcessMessageReceived(b engine.Browser, _ engine.Frame, _ engine.ProcessID, msg *envelope.Message) bool {
	c.mu.Lock()
	c.messages = append(c.messages, msg.Name)
	c.mu.Unlock()

	if !envelope.IsFunction(msg.Name) {
		return false
	}
	_ = b.Host().SendProcessMessage(engine.PIDRenderer, envelope.NewExecuteCallback(msg.GetInt(0), c.reply))
	return true
}

func (c *recordingClient) hasConsole(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range c.console {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func (c *recordingClient) countConsole(line string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.console {
		if l == line {
			n++
		}
	}
	return n
}

func (c *recordingClient) loadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loads)
}

type harness struct {
	manager *engine.Manager
	engine  *Engine
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	cfg := Config{
		RenderHandler: func() engine.RenderProcessHandler {
			return script.New(script.DefaultConfig(), zap.NewNop(), nil)
		},
		ScriptTimeout: timeout,
		Logger:        zap.NewNop(),
	}
	m := engine.NewManager(NewFactory(cfg), engine.DefaultManagerConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(m.Shutdown)

	eng, ok := m.Engine().(*Engine)
	require.True(t, ok)
	return &harness{manager: m, engine: eng}
}

func (h *harness) create(t *testing.T, client engine.Client, url string) *Browser {
	t.Helper()
	var (
		b   engine.Browser
		err error
	)
	require.True(t, h.manager.QueueTaskSync(func() {
		b, err = h.engine.CreateBrowserSync(
			engine.WindowInfo{Width: 64, Height: 48, Windowless: true},
			client, url,
			engine.BrowserSettings{FrameRate: 60},
		)
	}))
	require.NoError(t, err)
	return b.(*Browser)
}

// onQueue runs fn on the UI-affinity goroutine.
func (h *harness) onQueue(t *testing.T, fn func()) {
	t.Helper()
	require.True(t, h.manager.QueueTaskSync(fn))
}

func writePage(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return scheme.EncodeLocalPath(path)
}

func TestBlankPageLoads(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	b := h.create(t, client, BlankURL)

	require.Eventually(t, func() bool { return client.loadCount() == 1 }, waitFor, tick)
	client.mu.Lock()
	assert.Equal(t, loadEvent{url: BlankURL, main: true, status: 200}, client.loads[0])
	client.mu.Unlock()

	assert.Equal(t, 1, h.engine.Len())
	assert.True(t, b.MainFrame().IsMain())
	assert.Equal(t, BlankURL, b.MainFrame().URL())
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, time.Second)

	var err error
	h.onQueue(t, func() {
		_, err = h.engine.CreateBrowserSync(engine.WindowInfo{Width: 1, Height: 1}, newRecordingClient(), BlankURL, engine.BrowserSettings{})
	})
	assert.ErrorIs(t, err, ErrWindowed)

	h.onQueue(t, func() {
		_, err = h.engine.CreateBrowserSync(engine.WindowInfo{Windowless: true}, nil, BlankURL, engine.BrowserSettings{})
	})
	assert.ErrorIs(t, err, ErrNoClient)
}

func TestInlineScriptsReportToConsole(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	h.create(t, client, writePage(t, `<html><body>
<script>console.log("sum", 1 + 2);</script>
<script>throw new Error("boom");</script>
<script type="text/template">console.log("skipped");</script>
<script>console.warn("still running");</script>
</body></html>`))

	require.Eventually(t, func() bool { return client.hasConsole("still running") }, waitFor, tick)
	assert.True(t, client.hasConsole("sum 3"))
	assert.True(t, client.hasConsole("Uncaught Error: boom"))
	assert.False(t, client.hasConsole("skipped"))
}

func TestMissingLocalFileReportsStatus(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	h.create(t, client, scheme.EncodeLocalPath(filepath.Join(t.TempDir(), "missing.html")))

	require.Eventually(t, func() bool { return client.loadCount() == 1 }, waitFor, tick)
	client.mu.Lock()
	assert.Equal(t, 404, client.loads[0].status)
	client.mu.Unlock()
	assert.True(t, client.hasConsole("Failed to load"))
}

func TestPaintDeliversBGRAFrames(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	h.create(t, client, writePage(t, `<html><body><p>HELLO FROM THE PAGE</p></body></html>`))

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.paints > 0
	}, waitFor, tick)

	client.mu.Lock()
	buf := client.lastPaint
	client.mu.Unlock()
	require.Len(t, buf, 64*48*4)

	opaque := false
	for i := 3; i < len(buf); i += 4 {
		if buf[i] != 0 {
			opaque = true
			break
		}
	}
	assert.True(t, opaque)
}

func TestScriptBridgeRoundTrip(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	client.reply = `{"name":"Overlay","width":64}`
	h.create(t, client, writePage(t, `<html><body><script>
irltk.getSourceInfo(function (info) { console.log("info " + info.name + " " + info.width); });
console.log("blocked " + irltk.notAFunction);
</script></body></html>`))

	require.Eventually(t, func() bool { return client.hasConsole("info Overlay 64") }, waitFor, tick)
	assert.True(t, client.hasConsole("blocked undefined"))

	client.mu.Lock()
	assert.Contains(t, client.messages, envelope.FuncGetSourceInfo)
	client.mu.Unlock()
}

func TestDispatchEventReachesEveryFrame(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	b := h.create(t, client, writePage(t, `<html><body>
<script>addEventListener("ping", function (e) { console.log("main " + e.detail.n); });</script>
<iframe srcdoc="<script>addEventListener('ping', function (e) { console.log('child ' + e.detail.n); });</script>"></iframe>
</body></html>`))

	require.Eventually(t, func() bool { return client.loadCount() == 2 }, waitFor, tick)

	h.onQueue(t, func() {
		require.NoError(t, b.Host().SendProcessMessage(engine.PIDRenderer, envelope.NewDispatchJSEvent("ping", `{"n":7}`)))
	})
	require.Eventually(t, func() bool {
		return client.hasConsole("main 7") && client.hasConsole("child 7")
	}, waitFor, tick)
}

func TestVisibilityReachesPageSlot(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	b := h.create(t, client, writePage(t, `<html><body><script>
irltk.onVisibilityChange = function (v) { console.log("visible " + v); };
irltk.onActiveChange = function (v) { console.log("active " + v); };
</script></body></html>`))

	require.Eventually(t, func() bool { return client.loadCount() == 1 }, waitFor, tick)
	h.onQueue(t, func() {
		require.NoError(t, b.Host().SendProcessMessage(engine.PIDRenderer, envelope.NewVisibility(false)))
		require.NoError(t, b.Host().SendProcessMessage(engine.PIDRenderer, envelope.NewActive(true)))
	})
	require.Eventually(t, func() bool {
		return client.hasConsole("visible false") && client.hasConsole("active true")
	}, waitFor, tick)
}

func TestExecuteJavaScriptInjectsCSS(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	b := h.create(t, client, BlankURL)

	require.Eventually(t, func() bool { return client.loadCount() == 1 }, waitFor, tick)
	h.onQueue(t, func() {
		frame := b.MainFrame()
		frame.ExecuteJavaScript(render.CSSInjectionScript("body { color: red; }"), "", 0)
		frame.ExecuteJavaScript(`console.log("head " + document.head.innerHTML)`, "", 0)
	})
	require.Eventually(t, func() bool {
		return client.hasConsole("head <style>body { color: red; }</style>")
	}, waitFor, tick)
}

func TestWindowOpenAsksForPopup(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	h.create(t, client, writePage(t, `<html><body><script>
console.log("opened " + window.open("https://example.com/"));
</script></body></html>`))

	require.Eventually(t, func() bool { return client.hasConsole("opened null") }, waitFor, tick)
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.popups) == 1 && client.popups[0] == "https://example.com/"
	}, waitFor, tick)
}

func TestInputBecomesDOMEvents(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	b := h.create(t, client, writePage(t, `<html><body><script>
addEventListener("keydown", function (e) { console.log("keydown " + e.keyCode + " " + e.key); });
addEventListener("keypress", function (e) { console.log("keypress " + e.key); });
addEventListener("mousedown", function (e) { console.log("mousedown " + e.clientX + "," + e.clientY + " " + e.button); });
addEventListener("click", function (e) { console.log("click " + e.detail); });
addEventListener("wheel", function (e) { console.log("wheel " + e.deltaY); });
addEventListener("focus", function () { console.log("focus"); });
</script></body></html>`))

	require.Eventually(t, func() bool { return client.loadCount() == 1 }, waitFor, tick)
	h.onQueue(t, func() {
		host := b.Host()
		host.SetFocus(true)
		host.SendKeyEvent(engine.KeyEvent{Type: engine.KeyRawDown, WindowsKeyCode: 65, Character: 'a'})
		host.SendKeyEvent(engine.KeyEvent{Type: engine.KeyChar, WindowsKeyCode: 'a', Character: 'a'})
		host.SendMouseClickEvent(engine.MouseEvent{X: 3, Y: 4}, engine.MouseLeft, false, 1)
		host.SendMouseClickEvent(engine.MouseEvent{X: 3, Y: 4}, engine.MouseLeft, true, 1)
		host.SendMouseWheelEvent(engine.MouseEvent{}, 0, -120)
		host.SendMouseClickEvent(engine.MouseEvent{}, engine.MouseRight, true, 1)
	})

	require.Eventually(t, func() bool {
		return client.hasConsole("keydown 65 a") &&
			client.hasConsole("keypress a") &&
			client.hasConsole("mousedown 3,4 0") &&
			client.hasConsole("click 1") &&
			client.hasConsole("wheel -120") &&
			client.hasConsole("focus")
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.menus == 1
	}, waitFor, tick)
}

func TestTimers(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	h.create(t, client, writePage(t, `<html><body><script>
var cancelled = setTimeout(function () { console.log("cancelled fired"); }, 5);
clearTimeout(cancelled);
setTimeout(function (arg) { console.log("fired " + arg); }, 20, "x");
</script></body></html>`))

	require.Eventually(t, func() bool { return client.hasConsole("fired x") }, waitFor, tick)
	assert.False(t, client.hasConsole("cancelled fired"))
}

func TestScriptTimeoutInterruptsRunawayScript(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	client := newRecordingClient()
	h.create(t, client, writePage(t, `<html><body>
<script>while (true) {}</script>
<script>console.log("after");</script>
</body></html>`))

	require.Eventually(t, func() bool { return client.hasConsole("after") }, waitFor, tick)
	assert.True(t, client.hasConsole("Script interrupted"))
}

func TestRunawayPageCallbacksAreInterrupted(t *testing.T) {
	h := newHarness(t, 100*time.Millisecond)
	client := newRecordingClient()
	b := h.create(t, client, writePage(t, `<html><body><script>
irltk.onVisibilityChange = function () { while (true) {} };
addEventListener("stall", function () { while (true) {} });
addEventListener("ping", function () { console.log("ping delivered"); });
</script></body></html>`))

	require.Eventually(t, func() bool { return client.loadCount() == 1 }, waitFor, tick)
	h.onQueue(t, func() {
		require.NoError(t, b.Host().SendProcessMessage(engine.PIDRenderer, envelope.NewVisibility(true)))
		require.NoError(t, b.Host().SendProcessMessage(engine.PIDRenderer, envelope.NewDispatchJSEvent("stall", "{}")))
		require.NoError(t, b.Host().SendProcessMessage(engine.PIDRenderer, envelope.NewDispatchJSEvent("ping", "{}")))
	})
	require.Eventually(t, func() bool { return client.hasConsole("ping delivered") }, waitFor, tick)
}

func TestReloadRunsPageAgain(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	b := h.create(t, client, writePage(t, `<html><body><script>console.log("loaded");</script></body></html>`))

	require.Eventually(t, func() bool { return client.loadCount() == 1 }, waitFor, tick)
	h.onQueue(t, b.ReloadIgnoreCache)
	require.Eventually(t, func() bool { return client.loadCount() == 2 }, waitFor, tick)
	assert.Equal(t, 2, client.countConsole("loaded"))
}

func TestCloseBrowser(t *testing.T) {
	h := newHarness(t, time.Second)
	client := newRecordingClient()
	b := h.create(t, client, BlankURL)

	h.onQueue(t, func() {
		b.Host().SetAudioMuted(true)
		b.Host().CloseBrowser(true)
	})
	assert.True(t, b.Muted())
	assert.True(t, b.Closed())
	assert.Equal(t, 0, h.engine.Len())

	var err error
	h.onQueue(t, func() {
		err = b.Host().SendProcessMessage(engine.PIDRenderer, envelope.NewActive(true))
	})
	assert.ErrorIs(t, err, envelope.ErrClosed)
}

func TestShutdownRejectsNewBrowsers(t *testing.T) {
	h := newHarness(t, time.Second)
	b := h.create(t, newRecordingClient(), BlankURL)

	h.manager.Shutdown()
	assert.True(t, b.Closed())

	_, err := h.engine.CreateBrowserSync(engine.WindowInfo{Windowless: true}, newRecordingClient(), BlankURL, engine.BrowserSettings{})
	assert.ErrorIs(t, err, ErrEngineClosed)
}
