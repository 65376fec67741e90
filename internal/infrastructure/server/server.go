package server

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/browser-source/internal/api/http"
	"github.com/GriffinCanCode/browser-source/internal/api/middleware"
	"github.com/GriffinCanCode/browser-source/internal/bridge/script"
	"github.com/GriffinCanCode/browser-source/internal/engine"
	"github.com/GriffinCanCode/browser-source/internal/engine/headless"
	"github.com/GriffinCanCode/browser-source/internal/host"
	"github.com/GriffinCanCode/browser-source/internal/host/software"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/config"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/logging"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/browser-source/internal/source"
	"github.com/GriffinCanCode/browser-source/internal/ws"
)

const (
	serviceName     = "browser-source"
	shutdownTimeout = 10 * time.Second
	audioPackets    = 512
	vendorPath      = "/vendor"
)

// Server wraps the HTTP server, the engine and the sources it drives.
type Server struct {
	router   *gin.Engine
	handler  http.Handler
	manager  *engine.Manager
	plugin   *source.Plugin
	graphics *software.Graphics
	audio    *software.AudioRecorder
	tracer   *tracing.Tracer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer builds every component and creates the sources named in the
// definitions file, if any. The engine is started; sources get their
// browsers on the first frame tick.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger.Info("Initializing browser source server",
		zap.String("port", cfg.Server.Port),
		zap.Int("canvas_width", cfg.Canvas.Width),
		zap.Int("canvas_height", cfg.Canvas.Height),
		zap.Int("canvas_fps", cfg.Canvas.FPS),
	)

	// Metrics first; every other component records into them
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)
	metrics.StartUptime()

	tracer := tracing.New(serviceName, logger.Logger, 1000)

	fetcher := headless.NewFetcher(headless.FetcherConfig{
		Timeout:   cfg.Engine.FetchTimeout,
		UserAgent: cfg.Engine.UserAgent,
		Retries:   cfg.Engine.FetchRetries,
		RateLimit: cfg.Engine.FetchRate,
	})

	scriptCfg := script.DefaultConfig()
	scriptCfg.Namespace = cfg.Engine.Namespace
	scriptLogger := logger.Component("script")

	engineCfg := headless.DefaultConfig()
	engineCfg.Fetcher = fetcher
	engineCfg.ScriptTimeout = cfg.Engine.ScriptTimeout
	engineCfg.Logger = logger.Component("headless")
	engineCfg.Metrics = metrics
	engineCfg.RenderHandler = func() engine.RenderProcessHandler {
		return script.New(scriptCfg, scriptLogger, metrics)
	}

	manager := engine.NewManager(headless.NewFactory(engineCfg), engine.ManagerConfig{
		QueueSize:     cfg.Engine.QueueSize,
		RetryInterval: cfg.Engine.ShutdownRetry,
	}, logger.Component("engine"))
	if err := manager.Start(); err != nil {
		tracer.Close()
		metrics.Close()
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	logger.Info("Engine started", zap.Int("queue_size", cfg.Engine.QueueSize))

	graphics := software.NewGraphics(cfg.Canvas.Width, cfg.Canvas.Height)
	audio := software.NewAudioRecorder(audioPackets)

	plugin, err := source.NewPlugin(manager, source.Options{
		Logger:    logger.Logger,
		Metrics:   metrics,
		Graphics:  graphics,
		Audio:     audio,
		AudioInfo: host.AudioInfo{Channels: cfg.Audio.Channels, SampleRate: cfg.Audio.SampleRate},
		CanvasFPS: cfg.Canvas.FPS,
	})
	if err != nil {
		manager.Shutdown()
		tracer.Close()
		metrics.Close()
		return nil, fmt.Errorf("failed to create plugin: %w", err)
	}

	s := &Server{
		manager:  manager,
		plugin:   plugin,
		graphics: graphics,
		audio:    audio,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}

	if cfg.Sources.File != "" {
		if err := s.loadSources(cfg.Sources.File); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.router = s.newRouter(reg)
	s.handler = compress(s.router)
	logger.Info("Server initialized successfully", zap.Int("sources", len(plugin.List())))
	return s, nil
}

func (s *Server) loadSources(path string) error {
	defs, err := config.LoadSources(path)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	for _, def := range defs {
		src := s.plugin.Create(def.Name, def.Settings)
		if def.Visible {
			src.Show()
		}
		if def.Active {
			src.Activate()
		}
	}
	s.logger.Info("Sources loaded", zap.String("file", path), zap.Int("count", len(defs)))
	return nil
}

func (s *Server) newRouter(gatherer prometheus.Gatherer) *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics, "/metrics", "/health"))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = s.config.RateLimit.RequestsPerSecond
		rl.Burst = s.config.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(s.plugin, s.graphics, s.metrics, s.logger.Logger)
	handlers.Register(router)

	vendor := ws.NewHandler(s.plugin, s.metrics, s.tracer, s.logger.Logger)
	router.GET(vendorPath, vendor.HandleConnection)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return router
}

// compress gzips responses for clients that accept it. The vendor socket
// bypasses it since the upgrade hijacks the connection.
func compress(router http.Handler) http.Handler {
	gz := gzhttp.GzipHandler(router)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == vendorPath {
			router.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler serving the control API.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Plugin returns the source plugin
func (s *Server) Plugin() *source.Plugin {
	return s.plugin
}

// Frame runs one output frame: tick every source, then composite them
// onto a cleared canvas.
func (s *Server) Frame() int {
	s.plugin.TickAll()
	s.graphics.Clear(color.Transparent)
	return s.plugin.RenderAll()
}

// Run serves HTTP and drives frames at the canvas rate until ctx is done,
// then shuts the HTTP server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.frameLoop(loopCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	stopLoop()
	<-loopDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func (s *Server) frameLoop(ctx context.Context) {
	interval := time.Second / time.Duration(s.config.Canvas.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Frame()
		}
	}
}

// Close destroys every source and stops the engine.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.plugin.DestroyAll()
	s.manager.Shutdown()
	s.tracer.Close()
	s.metrics.Close()

	s.logger.Info("Server shutdown complete",
		zap.Int("live_textures", s.graphics.LiveTextures()),
		zap.Int("audio_packets", s.audio.Len()))
	return nil
}
