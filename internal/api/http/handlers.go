package http

import (
	"image"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/browser-source/internal/source"
	"github.com/GriffinCanCode/browser-source/internal/shared/id"
)

// Canvas is the composited host output.
type Canvas interface {
	Snapshot() *image.RGBA
}

// Handlers serves the source control API.
type Handlers struct {
	plugin  *source.Plugin
	canvas  Canvas
	logger  *zap.Logger
	metrics *HandlerMetrics
	stats   *StatsCollector
}

// NewHandlers creates the API handlers. canvas may be nil, in which case
// the canvas snapshot is unavailable.
func NewHandlers(plugin *source.Plugin, canvas Canvas, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		plugin:  plugin,
		canvas:  canvas,
		logger:  logger.Named("api"),
		metrics: NewHandlerMetrics(metrics),
		stats:   NewStatsCollector(plugin, metrics),
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/stats", h.stats.GetStats)
	r.GET("/canvas.png", h.CanvasSnapshot)
	r.POST("/events", h.EmitEvent)

	sources := r.Group("/sources")
	{
		sources.GET("", h.ListSources)
		sources.POST("", h.CreateSource)
		sources.GET("/:id", h.GetSource)
		sources.PUT("/:id", h.ReplaceSource)
		sources.PATCH("/:id", h.PatchSource)
		sources.DELETE("/:id", h.DeleteSource)
		sources.GET("/:id/properties", h.GetProperties)
		sources.GET("/:id/frame.png", h.FrameSnapshot)

		sources.POST("/:id/show", h.Show)
		sources.POST("/:id/hide", h.Hide)
		sources.POST("/:id/activate", h.Activate)
		sources.POST("/:id/deactivate", h.Deactivate)
		sources.POST("/:id/refresh", h.Refresh)

		sources.POST("/:id/events", h.SourceEvent)
		sources.POST("/:id/mouse", h.Mouse)
		sources.POST("/:id/key", h.Key)
		sources.POST("/:id/focus", h.Focus)
	}
}

// Health reports liveness and the number of live sources.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"sources": len(h.plugin.List()),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// lookup resolves the :id parameter, answering 404 when it names no live
// source.
func (h *Handlers) lookup(c *gin.Context) (*source.Source, bool) {
	sid := c.Param("id")
	if !id.IsValidPrefixed(sid, id.SourcePrefix) {
		respondError(c, http.StatusNotFound, source.ErrNotFound.Error())
		return nil, false
	}
	src, err := h.plugin.Get(id.SourceID(sid))
	if err != nil {
		respondError(c, http.StatusNotFound, err.Error())
		return nil, false
	}
	return src, true
}

// log returns the api logger carrying the request's trace fields.
func (h *Handlers) log(c *gin.Context) *zap.Logger {
	return h.logger.With(tracing.Fields(c.Request.Context())...)
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
	})
}

func respondOK(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}
