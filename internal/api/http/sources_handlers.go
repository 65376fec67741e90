package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/shared/utils"
	"github.com/GriffinCanCode/browser-source/internal/source"
)

// SourceView is the API representation of a source.
type SourceView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Visible     bool            `json:"visible"`
	Active      bool            `json:"active"`
	HasFrame    bool            `json:"has_frame"`
	Creations   int64           `json:"creations"`
	Recreations int64           `json:"recreations"`
	CreatedAt   time.Time       `json:"created_at"`
	Settings    source.Settings `json:"settings"`
}

func viewOf(src *source.Source) SourceView {
	info := src.Info()
	created, _ := src.ID().CreatedAt()
	return SourceView{
		ID:          src.ID().String(),
		Name:        info.Name,
		URL:         info.URL,
		Width:       info.Width,
		Height:      info.Height,
		Visible:     info.Visible,
		Active:      info.Active,
		HasFrame:    src.Surface().HasTexture(),
		Creations:   src.Creations(),
		Recreations: src.Recreations(),
		CreatedAt:   created,
		Settings:    src.Settings(),
	}
}

type createRequest struct {
	Name     string          `json:"name"`
	Visible  *bool           `json:"visible"`
	Active   *bool           `json:"active"`
	Settings source.Settings `json:"settings"`
}

// ListSources returns every live source
func (h *Handlers) ListSources(c *gin.Context) {
	sources := h.plugin.List()
	views := make([]SourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, viewOf(src))
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"sources": views,
	})
}

// CreateSource creates a source. Settings left out of the body keep their
// defaults; the source starts visible and active unless told otherwise.
func (h *Handlers) CreateSource(c *gin.Context) {
	done := h.metrics.TrackSourceOperation("create")

	req := createRequest{Settings: source.DefaultSettings()}
	if err := c.ShouldBindJSON(&req); err != nil {
		done("invalid")
		respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := utils.ValidateSourceName(req.Name); err != nil {
		done("invalid")
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	src := h.plugin.Create(req.Name, req.Settings)
	if req.Visible == nil || *req.Visible {
		src.Show()
	}
	if req.Active == nil || *req.Active {
		src.Activate()
	}
	done("success")

	h.log(c).Info("Source created via API",
		zap.String("source_id", src.ID().String()),
		zap.String("source", req.Name))

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"source":  viewOf(src),
	})
}

// GetSource returns one source
func (h *Handlers) GetSource(c *gin.Context) {
	src, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"source":  viewOf(src),
	})
}

// ReplaceSource replaces the source's settings. Keys left out of the body
// fall back to their defaults.
func (h *Handlers) ReplaceSource(c *gin.Context) {
	h.updateSource(c, "replace", func(*source.Source) source.Settings {
		return source.DefaultSettings()
	})
}

// PatchSource overlays the body onto the source's current settings.
func (h *Handlers) PatchSource(c *gin.Context) {
	h.updateSource(c, "patch", (*source.Source).Settings)
}

func (h *Handlers) updateSource(c *gin.Context, op string, base func(*source.Source) source.Settings) {
	src, ok := h.lookup(c)
	if !ok {
		return
	}
	done := h.metrics.TrackSourceOperation(op)

	next := base(src)
	if err := c.ShouldBindJSON(&next); err != nil {
		done("invalid")
		respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	src.Update(next)
	done("success")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"source":  viewOf(src),
	})
}

// DeleteSource destroys a source
func (h *Handlers) DeleteSource(c *gin.Context) {
	src, ok := h.lookup(c)
	if !ok {
		return
	}
	done := h.metrics.TrackSourceOperation("destroy")
	if err := h.plugin.Destroy(src.ID()); err != nil {
		done("not_found")
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	done("success")
	respondOK(c)
}

// GetProperties returns the editable property schema of a source.
func (h *Handlers) GetProperties(c *gin.Context) {
	src, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"properties": src.Properties(),
	})
}

// Show makes the source visible
func (h *Handlers) Show(c *gin.Context) { h.lifecycle(c, "show", (*source.Source).Show) }

// Hide hides the source
func (h *Handlers) Hide(c *gin.Context) { h.lifecycle(c, "hide", (*source.Source).Hide) }

// Activate puts the source on the program output
func (h *Handlers) Activate(c *gin.Context) { h.lifecycle(c, "activate", (*source.Source).Activate) }

// Deactivate takes the source off the program output
func (h *Handlers) Deactivate(c *gin.Context) {
	h.lifecycle(c, "deactivate", (*source.Source).Deactivate)
}

// Refresh reloads the page ignoring the cache
func (h *Handlers) Refresh(c *gin.Context) { h.lifecycle(c, "refresh", (*source.Source).Refresh) }

func (h *Handlers) lifecycle(c *gin.Context, op string, fn func(*source.Source)) {
	src, ok := h.lookup(c)
	if !ok {
		return
	}
	done := h.metrics.TrackSourceOperation(op)
	fn(src)
	done("success")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"source":  viewOf(src),
	})
}
