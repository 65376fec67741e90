package script

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
	"github.com/GriffinCanCode/browser-source/internal/engine"
)

const prelude = `
var events = [];
function CustomEvent(type, init) {
	this.type = type;
	if (init && ('detail' in init)) this.detail = init.detail;
}
function dispatchEvent(e) { events.push(e); return true; }
`

type testContext struct {
	rt    *goja.Runtime
	frame *testFrame
}

func (c *testContext) Runtime() *goja.Runtime              { return c.rt }
func (c *testContext) Frame() engine.RenderFrame           { return c.frame }
func (c *testContext) Eval(src string) (goja.Value, error) { return c.rt.RunString(src) }
func (c *testContext) Call(fn goja.Callable, this goja.Value, args ...goja.Value) (goja.Value, error) {
	return fn(this, args...)
}

type testFrame struct {
	main bool
	url  string
	ctx  *testContext
}

func (f *testFrame) IsMain() bool                  { return f.main }
func (f *testFrame) URL() string                   { return f.url }
func (f *testFrame) Context() engine.ScriptContext { return f.ctx }

type testBrowser struct {
	frames  []*testFrame
	sent    []*envelope.Message
	sendErr error
}

func (b *testBrowser) ID() int                       { return 1 }
func (b *testBrowser) MainFrame() engine.RenderFrame { return b.frames[0] }

func (b *testBrowser) Frames() []engine.RenderFrame {
	out := make([]engine.RenderFrame, len(b.frames))
	for i, f := range b.frames {
		out[i] = f
	}
	return out
}

func (b *testBrowser) SendProcessMessage(_ engine.ProcessID, msg *envelope.Message) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, msg.Clone())
	return nil
}

func newFrame(t *testing.T, main bool, url string) *testFrame {
	t.Helper()
	rt := goja.New()
	_, err := rt.RunString(prelude)
	require.NoError(t, err)
	f := &testFrame{main: main, url: url}
	f.ctx = &testContext{rt: rt, frame: f}
	return f
}

// setup creates a browser with a main frame and n sub-frames, each with the
// namespace installed.
func setup(t *testing.T, subFrames int) (*Bridge, *testBrowser) {
	t.Helper()
	br := &testBrowser{frames: []*testFrame{newFrame(t, true, "http://main/")}}
	for i := 0; i < subFrames; i++ {
		br.frames = append(br.frames, newFrame(t, false, "http://child/"))
	}
	b := New(DefaultConfig(), nil, nil)
	for _, f := range br.frames {
		b.OnContextCreated(br, f, f.ctx)
	}
	return b, br
}

func run(t *testing.T, f *testFrame, src string) goja.Value {
	t.Helper()
	v, err := f.ctx.rt.RunString(src)
	require.NoError(t, err)
	return v
}

func TestNamespaceInstalledInEveryContext(t *testing.T) {
	_, br := setup(t, 2)
	for _, f := range br.frames {
		v := run(t, f, "typeof irltk.testFunction + typeof irltk.getSourceInfo")
		assert.Equal(t, "functionfunction", v.String())
	}
}

func TestInvocationWithoutCallback(t *testing.T) {
	b, br := setup(t, 0)
	run(t, br.frames[0], `irltk.testFunction("a", 7, true, 1.5)`)

	require.Len(t, br.sent, 1)
	msg := br.sent[0]
	assert.Equal(t, envelope.FuncTestFunction, msg.Name)
	assert.Equal(t, int32(0), msg.GetInt(0))
	assert.Equal(t, "a", msg.GetString(1))
	assert.Equal(t, int32(7), msg.GetInt(2))
	assert.True(t, msg.GetBool(3))
	assert.Equal(t, 1.5, msg.GetDouble(4))
	assert.Zero(t, b.Pending())
}

func TestInvocationWithCallbackShiftsArguments(t *testing.T) {
	b, br := setup(t, 0)
	run(t, br.frames[0], `irltk.testFunction(function(r) {}, "x", 2)`)

	require.Len(t, br.sent, 1)
	msg := br.sent[0]
	assert.Equal(t, int32(1), msg.GetInt(0))
	assert.Equal(t, "x", msg.GetString(1))
	assert.Equal(t, int32(2), msg.GetInt(2))
	assert.Equal(t, 1, b.Pending())
}

func TestLaterCallableIsNotACallback(t *testing.T) {
	b, br := setup(t, 0)
	run(t, br.frames[0], `irltk.testFunction("x", function() {}, 3)`)

	msg := br.sent[0]
	assert.Equal(t, int32(0), msg.GetInt(0))
	assert.Equal(t, "x", msg.GetString(1))
	assert.True(t, msg.Arg(2).IsNull(), "dropped argument leaves a gap")
	assert.Equal(t, int32(3), msg.GetInt(3))
	assert.Zero(t, b.Pending())
}

func TestUnsupportedArgumentsDropped(t *testing.T) {
	_, br := setup(t, 0)
	run(t, br.frames[0], `irltk.testFunction({a: 1}, null, undefined, [1], 4294967296)`)

	msg := br.sent[0]
	for i := 1; i <= 4; i++ {
		assert.True(t, msg.Arg(i).IsNull(), "slot %d", i)
	}
	assert.Equal(t, envelope.KindDouble, msg.Arg(5).Kind())
	assert.Equal(t, float64(4294967296), msg.GetDouble(5))
}

func TestInvokeRejectsUnlistedName(t *testing.T) {
	b, br := setup(t, 0)
	ok := b.Invoke(br, br.frames[0].ctx, "deleteEverything", nil)
	assert.False(t, ok)
	assert.Empty(t, br.sent)
}

func TestCallbackConsumedExactlyOnce(t *testing.T) {
	b, br := setup(t, 0)
	f := br.frames[0]
	run(t, f, `var calls = 0, got; irltk.testFunction(function(r) { calls++; got = r; })`)
	id := br.sent[0].GetInt(0)

	reply := envelope.NewExecuteCallback(id, `{"test":"object","r":"testFunction"}`)
	require.True(t, b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, reply))
	require.True(t, b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, reply))

	assert.Equal(t, int64(1), run(t, f, "calls").ToInteger())
	assert.Equal(t, "testFunction", run(t, f, "got.r").String())
	assert.Zero(t, b.Pending())
}

func TestStrayCallbackIDIsNoOp(t *testing.T) {
	b, br := setup(t, 0)
	assert.True(t, b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.NewExecuteCallback(0, "{}")))
	assert.True(t, b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.NewExecuteCallback(99, "{}")))
	assert.True(t, b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.New(envelope.NameExecuteCallback)))
}

func TestMalformedCallbackJSONIsNull(t *testing.T) {
	b, br := setup(t, 0)
	f := br.frames[0]
	run(t, f, `var got = "unset"; irltk.testFunction(function(r) { got = r; })`)

	b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.NewExecuteCallback(br.sent[0].GetInt(0), "{nope"))
	assert.True(t, goja.IsNull(run(t, f, "got")))
}

func TestCallbackRunsInItsOwnContext(t *testing.T) {
	b, br := setup(t, 1)
	child := br.frames[1]
	run(t, child, `var hit = false; irltk.testFunction(function() { hit = true; })`)

	b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.NewExecuteCallback(br.sent[0].GetInt(0), "1"))
	assert.True(t, run(t, child, "hit").ToBoolean())
}

func TestSendFailureReleasesCallback(t *testing.T) {
	b, br := setup(t, 0)
	br.sendErr = errors.New("closed")
	run(t, br.frames[0], `irltk.testFunction(function() {})`)
	assert.Zero(t, b.Pending())
}

func TestDispatchReachesEveryFrame(t *testing.T) {
	b, br := setup(t, 2)

	msg := envelope.NewDispatchJSEvent("obsSceneChanged", `{"name":"Scene 2"}`)
	require.True(t, b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, msg))

	for _, f := range br.frames {
		assert.Equal(t, int64(1), run(t, f, "events.length").ToInteger(), f.url)
		assert.Equal(t, "obsSceneChanged", run(t, f, "events[0].type").String())
		assert.Equal(t, "Scene 2", run(t, f, "events[0].detail.name").String())
	}
}

func TestDispatchWithoutValidPayloadOmitsDetail(t *testing.T) {
	b, br := setup(t, 0)
	f := br.frames[0]

	b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.NewDispatchJSEvent("a", "not json"))
	b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.New(envelope.NameDispatchJSEvent, envelope.String("b")))

	assert.Equal(t, int64(2), run(t, f, "events.length").ToInteger())
	assert.False(t, run(t, f, "'detail' in events[0]").ToBoolean())
	assert.False(t, run(t, f, "'detail' in events[1]").ToBoolean())
}

func TestDispatchQuotesEventName(t *testing.T) {
	b, br := setup(t, 0)
	f := br.frames[0]

	b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.NewDispatchJSEvent(`it's "quoted"`, "true"))
	assert.Equal(t, `it's "quoted"`, run(t, f, "events[0].type").String())
	assert.True(t, run(t, f, "events[0].detail").ToBoolean())
}

func TestVisibilityAndActiveCallMainFrameOnly(t *testing.T) {
	b, br := setup(t, 1)
	for _, f := range br.frames {
		run(t, f, `var vis = null, act = null;
			irltk.onVisibilityChange = function(v) { vis = v; };
			irltk.onActiveChange = function(a) { act = a; };`)
	}

	b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.NewVisibility(true))
	b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.NewActive(false))

	main, child := br.frames[0], br.frames[1]
	assert.True(t, run(t, main, "vis").ToBoolean())
	assert.False(t, run(t, main, "act").ToBoolean())
	assert.True(t, goja.IsNull(run(t, child, "vis")))
	assert.True(t, goja.IsNull(run(t, child, "act")))
}

func TestMissingPageSlotIsNoOp(t *testing.T) {
	b, br := setup(t, 0)
	assert.True(t, b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.NewVisibility(true)))
}

func TestThrowingPageCallbackIsContained(t *testing.T) {
	b, br := setup(t, 0)
	run(t, br.frames[0], `irltk.onActiveChange = function() { throw new Error("page bug"); };`)
	assert.NotPanics(t, func() {
		b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.NewActive(true))
	})
}

func TestUnknownMessageUnhandled(t *testing.T) {
	b, br := setup(t, 0)
	assert.False(t, b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.New("Reboot")))
	assert.False(t, b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, envelope.New(envelope.FuncTestFunction, envelope.Int(0))))
	assert.False(t, b.OnProcessMessageReceived(br, nil, engine.PIDBrowser, nil))
}

func TestMarshalArg(t *testing.T) {
	rt := goja.New()
	tests := []struct {
		src  string
		kind envelope.Kind
		ok   bool
	}{
		{`"s"`, envelope.KindString, true},
		{`42`, envelope.KindInt, true},
		{`-2147483648`, envelope.KindInt, true},
		{`2147483648`, envelope.KindDouble, true},
		{`3.0`, envelope.KindInt, true},
		{`0.25`, envelope.KindDouble, true},
		{`NaN`, envelope.KindDouble, true},
		{`false`, envelope.KindBool, true},
		{`null`, envelope.KindNull, false},
		{`undefined`, envelope.KindNull, false},
		{`({})`, envelope.KindNull, false},
		{`(function() {})`, envelope.KindNull, false},
	}
	for _, tt := range tests {
		v, err := rt.RunString(tt.src)
		require.NoError(t, err)
		got, ok := marshalArg(v)
		assert.Equal(t, tt.ok, ok, tt.src)
		if ok {
			assert.Equal(t, tt.kind, got.Kind(), tt.src)
		}
	}
}

func TestEventScript(t *testing.T) {
	src, err := EventScript("x", `[1,2]`, true)
	require.NoError(t, err)
	assert.Equal(t, `new CustomEvent("x", {"detail":[1,2]});`, src)

	src, err = EventScript("x", "", false)
	require.NoError(t, err)
	assert.Equal(t, `new CustomEvent("x", {});`, src)
}
