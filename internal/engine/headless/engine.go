package headless

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
	"github.com/GriffinCanCode/browser-source/internal/engine"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
)

var (
	ErrNoClient     = errors.New("browser client is required")
	ErrWindowed     = errors.New("only windowless browsers are supported")
	ErrEngineClosed = errors.New("engine is shut down")
)

const defaultFrameRate = 30

// Config configures the headless engine.
type Config struct {
	Fetcher *Fetcher
	// RenderHandler builds the renderer-role handler of each browser. Nil
	// runs pages without one.
	RenderHandler func() engine.RenderProcessHandler
	PipeBuffer    int
	ScriptTimeout time.Duration
	Logger        *zap.Logger
	Metrics       *monitoring.Metrics
}

// DefaultConfig returns the standard engine configuration
func DefaultConfig() Config {
	return Config{
		PipeBuffer:    256,
		ScriptTimeout: 5 * time.Second,
	}
}

// Engine runs off-screen browsers in process. The browser role lives on the
// UI-affinity queue; each renderer role on its own goroutine.
type Engine struct {
	queue   *engine.TaskQueue
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	painter *painter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	nextID   int
	browsers map[int]*Browser
	closed   bool
}

var _ engine.Engine = (*Engine)(nil)

// NewFactory returns a factory building headless engines from cfg.
func NewFactory(cfg Config) engine.Factory {
	return func(queue *engine.TaskQueue) (engine.Engine, error) {
		return New(queue, cfg)
	}
}

// New creates an engine bound to queue.
func New(queue *engine.TaskQueue, cfg Config) (*Engine, error) {
	if queue == nil {
		return nil, errors.New("task queue is required")
	}
	def := DefaultConfig()
	if cfg.PipeBuffer <= 0 {
		cfg.PipeBuffer = def.PipeBuffer
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewFetcher(DefaultFetcherConfig())
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		queue:    queue,
		cfg:      cfg,
		logger:   logger.Named("headless"),
		metrics:  cfg.Metrics,
		painter:  newPainter(),
		ctx:      ctx,
		cancel:   cancel,
		browsers: make(map[int]*Browser),
	}, nil
}

// CreateBrowserSync creates a browser and starts loading url.
func (e *Engine) CreateBrowserSync(info engine.WindowInfo, client engine.Client, url string, settings engine.BrowserSettings) (engine.Browser, error) {
	start := time.Now()
	b, err := e.create(info, client, url, settings)
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordOperation("engine", "create_browser", status, time.Since(start))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (e *Engine) create(info engine.WindowInfo, client engine.Client, url string, settings engine.BrowserSettings) (*Browser, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if !info.Windowless {
		return nil, ErrWindowed
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	e.nextID++

	browserEnd, rendererEnd := envelope.NewPipe(e.cfg.PipeBuffer)
	ctx, cancel := context.WithCancel(e.ctx)
	logger := e.logger.With(zap.Int("browser", e.nextID))

	b := &Browser{
		id:     e.nextID,
		engine: e,
		client: client,
		pipe:   browserEnd,
		cancel: cancel,
		logger: logger,
	}
	b.host = &browserHost{b: b}

	width, height := info.Width, info.Height
	if rect := client.GetViewRect(b); rect.Width > 0 && rect.Height > 0 {
		width, height = rect.Width, rect.Height
	}
	fps := settings.FrameRate
	if fps <= 0 {
		fps = defaultFrameRate
	}

	var handler engine.RenderProcessHandler
	if e.cfg.RenderHandler != nil {
		handler = e.cfg.RenderHandler()
	}

	b.renderer = &renderer{
		browser: b,
		handler: handler,
		pipe:    rendererEnd,
		fetcher: e.cfg.Fetcher,
		painter: e.painter,
		logger:  logger,
		timeout: e.cfg.ScriptTimeout,
		ctx:     ctx,
		mail:    newMailbox(),
		timers:  make(map[int]*pageTimer),
		width:   width,
		height:  height,
		fps:     fps,
	}
	b.main = &frameRef{browser: b, main: true, url: url}
	e.browsers[b.id] = b

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		b.renderer.run(url)
	}()
	go func() {
		defer e.wg.Done()
		b.receive(ctx)
	}()

	logger.Debug("Browser created", zap.String("url", url), zap.Int("width", width), zap.Int("height", height), zap.Int("fps", fps))
	return b, nil
}

func (e *Engine) closeBrowser(b *Browser) {
	if !b.close() {
		return
	}
	e.mu.Lock()
	delete(e.browsers, b.id)
	e.mu.Unlock()
	b.logger.Debug("Browser closed")
}

// Len returns the number of open browsers.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.browsers)
}

// Shutdown closes every browser and waits for their goroutines.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	browsers := make([]*Browser, 0, len(e.browsers))
	for _, b := range e.browsers {
		browsers = append(browsers, b)
	}
	e.browsers = map[int]*Browser{}
	e.mu.Unlock()

	for _, b := range browsers {
		b.close()
	}
	e.cancel()
	e.wg.Wait()
	e.logger.Info("Headless engine stopped", zap.Int("browsers", len(browsers)))
}
