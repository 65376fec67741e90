package render

import (
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
	"github.com/GriffinCanCode/browser-source/internal/engine"
	"github.com/GriffinCanCode/browser-source/internal/host"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
)

// Target is the source a client renders into. The client only holds a
// detachable reference to it.
type Target interface {
	Destroying() bool
	Name() string
	CSS() string
	ViewSize() (width, height int)
	Surface() *Surface
	// AudioOutput returns nil when the page's audio is not routed to the host.
	AudioOutput() host.AudioOutput
	Info() SourceInfo
}

type targetRef struct {
	target Target
}

// Options configure a Client.
type Options struct {
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
	Audio     host.AudioInfo
	Functions map[string]Function
}

// Client is the browser-role event sink of one browser. Every callback
// first checks that its target still exists and is not being destroyed.
type Client struct {
	ref       atomic.Pointer[targetRef]
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	audio     host.AudioInfo
	functions map[string]Function

	streamMu sync.Mutex
	stream   audioStream
}

var _ engine.Client = (*Client)(nil)

// NewClient creates a client rendering into target.
func NewClient(target Target, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Functions == nil {
		opts.Functions = DefaultFunctions()
	}
	c := &Client{
		logger:    opts.Logger.Named("render"),
		metrics:   opts.Metrics,
		audio:     opts.Audio,
		functions: opts.Functions,
	}
	if target != nil {
		c.ref.Store(&targetRef{target: target})
	}
	return c
}

// Detach drops the target. Later callbacks are no-ops.
func (c *Client) Detach() {
	c.ref.Store(nil)
}

// target returns the target when it passes the validity gate.
func (c *Client) target() (Target, bool) {
	ref := c.ref.Load()
	if ref == nil || ref.target == nil || ref.target.Destroying() {
		return nil, false
	}
	return ref.target, true
}

func (c *Client) GetViewRect(engine.Browser) engine.Rect {
	t, ok := c.target()
	if !ok {
		return engine.Rect{Width: 16, Height: 16}
	}
	w, h := t.ViewSize()
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return engine.Rect{Width: w, Height: h}
}

// OnPaint uploads view paints. Popup paints are not composited.
func (c *Client) OnPaint(_ engine.Browser, typ engine.PaintElementType, _ []engine.Rect, buffer []byte, width, height int) {
	if typ != engine.PaintView {
		return
	}
	t, ok := c.target()
	if !ok {
		return
	}
	if s := t.Surface(); s != nil {
		s.Paint(buffer, width, height)
	}
}

// GetAudioParameters asks the engine for the host's channel layout.
func (c *Client) GetAudioParameters(_ engine.Browser, params *engine.AudioParameters) bool {
	t, ok := c.target()
	if !ok || t.AudioOutput() == nil {
		return false
	}
	params.ChannelLayout = engine.LayoutForChannels(c.audio.Channels)
	params.SampleRate = c.audio.SampleRate
	params.FramesPerBuffer = FramesPerBuffer
	return true
}

func (c *Client) OnAudioStreamStarted(_ engine.Browser, params engine.AudioParameters, channels int) {
	c.streamMu.Lock()
	c.stream = audioStream{
		channels:        channels,
		layout:          params.ChannelLayout,
		sampleRate:      params.SampleRate,
		framesPerBuffer: params.FramesPerBuffer,
	}
	c.streamMu.Unlock()

	c.logger.Debug("Audio stream started",
		zap.Int("channels", channels),
		zap.Int("sample_rate", params.SampleRate))
}

// OnAudioStreamPacket republishes planar float samples to the host. A
// negative pts is stamped at 0.
func (c *Client) OnAudioStreamPacket(_ engine.Browser, data [][]float32, frames int, pts int64) {
	t, ok := c.target()
	if !ok {
		return
	}
	out := t.AudioOutput()
	if out == nil {
		return
	}

	c.streamMu.Lock()
	stream := c.stream
	c.streamMu.Unlock()

	speakers := SpeakerLayout(stream.layout)
	planes := data
	if n := speakers.Channels(); n > 0 && n < len(planes) {
		planes = planes[:n]
	}

	out.OutputAudio(host.AudioData{
		Data:       planes,
		Frames:     frames,
		Speakers:   speakers,
		Format:     host.AudioFormatFloatPlanar,
		SampleRate: stream.sampleRate,
		Timestamp:  uint64(max(pts, 0)) * ptsToHost,
	})
	c.metrics.RecordAudioPacket()
}

func (c *Client) OnAudioStreamStopped(engine.Browser) {
	c.logger.Debug("Audio stream stopped")
}

func (c *Client) OnAudioStreamError(_ engine.Browser, message string) {
	c.logger.Warn("Audio stream error", zap.String("error", message))
}

// OnLoadEnd injects the configured stylesheet into the main frame.
func (c *Client) OnLoadEnd(_ engine.Browser, f engine.Frame, _ int) {
	t, ok := c.target()
	if !ok || f == nil || !f.IsMain() {
		return
	}
	css := t.CSS()
	if css == "" {
		return
	}
	f.ExecuteJavaScript(CSSInjectionScript(css), "", 0)
}

// CSSInjectionScript builds the script appending css as a style element to
// the document head.
func CSSInjectionScript(css string) string {
	encoded := url.PathEscape(css)
	return "const obsCSS = document.createElement('style');" +
		"obsCSS.innerHTML = decodeURIComponent(\"" + encoded + "\");" +
		"document.querySelector('head').appendChild(obsCSS);"
}

// OnConsoleMessage relays page errors to the log. Only error and fatal
// messages are kept; error is logged as a warning and fatal as an error.
func (c *Client) OnConsoleMessage(_ engine.Browser, level engine.LogSeverity, message, source string, line int) bool {
	name := "<unknown>"
	if t, ok := c.target(); ok {
		name = t.Name()
	}

	fields := []zap.Field{
		zap.String("source", name),
		zap.String("message", message),
		zap.String("url", source),
		zap.Int("line", line),
	}

	switch level {
	case engine.LogError:
		c.logger.Warn("Page console error", fields...)
		c.metrics.RecordConsole("error")
	case engine.LogFatal:
		c.logger.Error("Page console fatal", fields...)
		c.metrics.RecordConsole("fatal")
	}
	return false
}

// OnBeforePopup blocks every popup.
func (c *Client) OnBeforePopup(engine.Browser, engine.Frame, string) bool {
	return true
}

// OnBeforeContextMenu removes every context menu entry.
func (c *Client) OnBeforeContextMenu(_ engine.Browser, _ engine.Frame, model engine.MenuModel) {
	if model != nil {
		model.Clear()
	}
}

// OnProcessMessageReceived answers allowlisted script invocations with an
// executeCallback reply carrying the invocation's callback id.
func (c *Client) OnProcessMessageReceived(b engine.Browser, _ engine.Frame, _ engine.ProcessID, msg *envelope.Message) bool {
	t, ok := c.target()
	if !ok || msg == nil {
		return false
	}
	fn, ok := c.functions[msg.Name]
	if !ok || !envelope.KnownToBrowser(msg.Name) {
		return false
	}
	c.metrics.RecordEnvelope("received", msg.Name)

	result := "null"
	value, err := fn(t.Info(), msg)
	if err != nil {
		c.logger.Warn("Function failed", zap.String("function", msg.Name), zap.Error(err))
	} else if encoded, err := sonic.MarshalString(value); err == nil {
		result = encoded
	} else {
		c.logger.Warn("Failed to encode result", zap.String("function", msg.Name), zap.Error(err))
	}

	reply := envelope.NewExecuteCallback(msg.GetInt(0), result)
	if b == nil || b.Host() == nil {
		return true
	}
	if err := b.Host().SendProcessMessage(engine.PIDRenderer, reply); err != nil {
		c.logger.Debug("Reply not delivered", zap.String("function", msg.Name), zap.Error(err))
		return true
	}
	c.metrics.RecordEnvelope("sent", envelope.NameExecuteCallback)
	return true
}
