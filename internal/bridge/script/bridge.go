package script

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/bridge/callback"
	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
	"github.com/GriffinCanCode/browser-source/internal/engine"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
)

const (
	DefaultNamespace = "irltk"

	// Page-defined slots on the namespace object receiving pushed state.
	OnVisibilityChange = "onVisibilityChange"
	OnActiveChange     = "onActiveChange"
)

// Config configures the injected namespace.
type Config struct {
	Namespace string
	Functions []string
}

// DefaultConfig returns the standard namespace and allowlist
func DefaultConfig() Config {
	return Config{
		Namespace: DefaultNamespace,
		Functions: append([]string(nil), envelope.Functions...),
	}
}

type pending struct {
	fn  goja.Callable
	ctx engine.ScriptContext
}

// Bridge is the renderer-role side of the bridge. It installs the namespace
// object into every script context and replays browser-role messages into
// the page.
type Bridge struct {
	namespace string
	functions []string
	allowed   map[string]bool
	callbacks *callback.Registry[pending]
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

var _ engine.RenderProcessHandler = (*Bridge)(nil)

// New creates a bridge.
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Bridge {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Functions == nil {
		cfg.Functions = envelope.Functions
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allowed := make(map[string]bool, len(cfg.Functions))
	for _, fn := range cfg.Functions {
		allowed[fn] = true
	}

	return &Bridge{
		namespace: cfg.Namespace,
		functions: cfg.Functions,
		allowed:   allowed,
		callbacks: callback.NewRegistry[pending](),
		logger:    logger.Named("script"),
		metrics:   metrics,
	}
}

// Namespace returns the name of the injected global object
func (b *Bridge) Namespace() string { return b.namespace }

// Pending returns the number of callbacks awaiting a reply
func (b *Bridge) Pending() int { return b.callbacks.Len() }

// OnContextCreated installs the namespace object into ctx.
func (b *Bridge) OnContextCreated(br engine.RenderBrowser, _ engine.RenderFrame, ctx engine.ScriptContext) {
	rt := ctx.Runtime()
	obj := rt.NewObject()

	for _, name := range b.functions {
		name := name
		fn := func(call goja.FunctionCall) goja.Value {
			if !b.Invoke(br, ctx, name, call.Arguments) {
				return rt.ToValue(false)
			}
			return goja.Undefined()
		}
		if err := obj.Set(name, fn); err != nil {
			b.logger.Warn("Failed to expose function", zap.String("function", name), zap.Error(err))
		}
	}

	if err := rt.GlobalObject().Set(b.namespace, obj); err != nil {
		b.logger.Warn("Failed to install namespace", zap.String("namespace", b.namespace), zap.Error(err))
	}
}

// OnContextReleased keeps pending callbacks. They are only dropped when
// their reply arrives.
func (b *Bridge) OnContextReleased(engine.RenderBrowser, engine.RenderFrame, engine.ScriptContext) {}

// Invoke sends the invocation of an allowlisted function host-ward. Slot 0
// carries the callback id, or 0 when the first argument is not callable.
// It returns false when name is not allowlisted.
func (b *Bridge) Invoke(br engine.RenderBrowser, ctx engine.ScriptContext, name string, args []goja.Value) bool {
	if !b.allowed[name] {
		return false
	}

	id := callback.NoCallback
	shift := 1
	if len(args) > 0 {
		if fn, ok := goja.AssertFunction(args[0]); ok {
			id = b.callbacks.Register(pending{fn: fn, ctx: ctx})
			shift = 0
		}
	}

	msg := envelope.NewInvocation(name, id)
	for i, arg := range args {
		pos := i + shift
		if pos == 0 {
			continue
		}
		if v, ok := marshalArg(arg); ok {
			msg.Set(pos, v)
		}
	}

	if err := br.SendProcessMessage(engine.PIDBrowser, msg); err != nil {
		if id != callback.NoCallback {
			b.callbacks.Take(id)
		}
		b.logger.Debug("Invocation not delivered", zap.String("function", name), zap.Error(err))
		return true
	}

	b.metrics.RecordEnvelope("sent", name)
	b.metrics.SetCallbacksPending(b.callbacks.Len())
	return true
}

// OnProcessMessageReceived applies a browser-role message. Unknown names
// are not handled.
func (b *Bridge) OnProcessMessageReceived(br engine.RenderBrowser, _ engine.RenderFrame, _ engine.ProcessID, msg *envelope.Message) bool {
	if msg == nil || !envelope.KnownToRenderer(msg.Name) {
		return false
	}
	b.metrics.RecordEnvelope("received", msg.Name)

	switch msg.Name {
	case envelope.NameVisibility:
		b.callPageSlot(br, OnVisibilityChange, msg.GetBool(0))
	case envelope.NameActive:
		b.callPageSlot(br, OnActiveChange, msg.GetBool(0))
	case envelope.NameDispatchJSEvent:
		b.dispatchEvent(br, msg)
	case envelope.NameExecuteCallback:
		b.executeCallback(msg)
	}
	return true
}

// callPageSlot calls namespace.slot(value) in the main frame.
func (b *Bridge) callPageSlot(br engine.RenderBrowser, slot string, value bool) {
	frame := br.MainFrame()
	if frame == nil || frame.Context() == nil {
		return
	}
	ctx := frame.Context()
	rt := ctx.Runtime()

	ns := rt.GlobalObject().Get(b.namespace)
	if ns == nil || goja.IsUndefined(ns) || goja.IsNull(ns) {
		return
	}
	fn, ok := goja.AssertFunction(ns.ToObject(rt).Get(slot))
	if !ok {
		return
	}
	if _, err := ctx.Call(fn, ns, rt.ToValue(value)); err != nil {
		b.metrics.RecordScriptError(slot)
		b.logger.Debug("Page callback threw", zap.String("slot", slot), zap.Error(err))
	}
}

// EventScript builds the expression constructing the CustomEvent for a
// DispatchJSEvent message. The payload becomes the event detail when it is
// valid JSON.
func EventScript(name string, payload string, hasPayload bool) (string, error) {
	quoted, err := sonic.MarshalString(name)
	if err != nil {
		return "", fmt.Errorf("quote event name: %w", err)
	}

	init := "{}"
	if hasPayload && sonic.Valid([]byte(payload)) {
		init = `{"detail":` + payload + `}`
	}
	return "new CustomEvent(" + quoted + ", " + init + ");", nil
}

// dispatchEvent dispatches the event on the global object of every frame.
func (b *Bridge) dispatchEvent(br engine.RenderBrowser, msg *envelope.Message) {
	name := msg.GetString(0)
	if name == "" {
		return
	}
	src, err := EventScript(name, msg.GetString(1), msg.Has(1) && !msg.Arg(1).IsNull())
	if err != nil {
		b.logger.Warn("Failed to build event", zap.String("event", name), zap.Error(err))
		return
	}

	for _, frame := range br.Frames() {
		ctx := frame.Context()
		if ctx == nil {
			continue
		}
		event, err := ctx.Eval(src)
		if err != nil {
			b.metrics.RecordScriptError("event")
			b.logger.Debug("Failed to create event", zap.String("event", name), zap.String("frame", frame.URL()), zap.Error(err))
			continue
		}

		rt := ctx.Runtime()
		dispatch, ok := goja.AssertFunction(rt.GlobalObject().Get("dispatchEvent"))
		if !ok {
			continue
		}
		if _, err := ctx.Call(dispatch, rt.GlobalObject(), event); err != nil {
			b.metrics.RecordScriptError("event")
			b.logger.Debug("Event listener threw", zap.String("event", name), zap.Error(err))
		}
	}
}

// executeCallback resolves a pending callback. Unknown ids are ignored.
func (b *Bridge) executeCallback(msg *envelope.Message) {
	entry, ok := b.callbacks.Take(msg.GetInt(0))
	b.metrics.SetCallbacksPending(b.callbacks.Len())
	if !ok {
		return
	}

	rt := entry.ctx.Runtime()
	result := parseJSON(rt, msg.GetString(1))
	if _, err := entry.ctx.Call(entry.fn, goja.Undefined(), result); err != nil {
		b.metrics.RecordScriptError("callback")
		b.logger.Debug("Callback threw", zap.Int32("id", msg.GetInt(0)), zap.Error(err))
	}
}

// parseJSON parses text with the context's own JSON.parse. Malformed input
// yields null.
func parseJSON(rt *goja.Runtime, text string) goja.Value {
	jsonObj := rt.GlobalObject().Get("JSON")
	if jsonObj == nil || goja.IsUndefined(jsonObj) {
		return goja.Null()
	}
	parse, ok := goja.AssertFunction(jsonObj.ToObject(rt).Get("parse"))
	if !ok {
		return goja.Null()
	}
	v, err := parse(jsonObj, rt.ToValue(text))
	if err != nil {
		return goja.Null()
	}
	return v
}
