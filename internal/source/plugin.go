package source

import (
	"errors"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/browser-source/internal/shared/id"
)

var (
	ErrNotFound   = errors.New("source not found")
	ErrNoGraphics = errors.New("graphics context is required")
)

// Plugin creates sources and drives them as a group.
type Plugin struct {
	exec     Executor
	opts     Options
	registry *Registry
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewPlugin creates a plugin whose sources run their browsers on exec.
func NewPlugin(exec Executor, opts Options) (*Plugin, error) {
	if opts.Graphics == nil {
		return nil, ErrNoGraphics
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Plugin{
		exec:     exec,
		opts:     opts,
		registry: NewRegistry(),
		logger:   opts.Logger.Named("plugin"),
		metrics:  opts.Metrics,
	}, nil
}

// Registry returns the live source registry
func (p *Plugin) Registry() *Registry {
	return p.registry
}

// Create configures a new source and registers it. Its browser is created on
// a later Tick.
func (p *Plugin) Create(name string, settings Settings) *Source {
	src := NewSource(name, p.exec, p.opts)
	src.Update(settings)

	h := p.registry.Insert(src)
	src.setUnregister(func() {
		p.registry.Remove(h)
		p.metrics.SetSourcesActive(p.registry.Len())
	})
	p.metrics.SetSourcesActive(p.registry.Len())

	p.logger.Info("Source created",
		zap.String("source_id", src.ID().String()),
		zap.String("source", name),
		zap.String("url", src.URL()))
	return src
}

// Get returns a live source.
func (p *Plugin) Get(sid id.SourceID) (*Source, error) {
	src, ok := p.registry.Lookup(sid)
	if !ok || src.Destroying() {
		return nil, ErrNotFound
	}
	return src, nil
}

// List returns the live sources in registration order.
func (p *Plugin) List() []*Source {
	return p.registry.List()
}

// Destroy destroys the source with id sid.
func (p *Plugin) Destroy(sid id.SourceID) error {
	src, err := p.Get(sid)
	if err != nil {
		return err
	}
	src.Destroy()
	p.logger.Info("Source destroyed", zap.String("source_id", sid.String()))
	return nil
}

// DestroyAll destroys every source.
func (p *Plugin) DestroyAll() {
	for _, src := range p.List() {
		src.Destroy()
	}
}

// TickAll runs one tick on every source.
func (p *Plugin) TickAll() {
	p.registry.Each(func(src *Source) bool {
		src.Tick()
		return true
	})
}

// RenderAll draws every source at the canvas origin in registration order
// and returns how many had a frame to draw.
func (p *Plugin) RenderAll() int {
	g := p.opts.Graphics
	g.Enter()
	defer g.Leave()

	drawn := 0
	p.registry.Each(func(src *Source) bool {
		if src.Render(0, 0) {
			drawn++
		}
		return true
	})
	return drawn
}

// DispatchJSEvent broadcasts a page event to every source and returns how
// many browsers it was queued for.
func (p *Plugin) DispatchJSEvent(eventName, jsonString string) int {
	reached := 0
	p.registry.Each(func(src *Source) bool {
		if src.DispatchJSEvent(eventName, jsonString) {
			reached++
		}
		return true
	})
	return reached
}
