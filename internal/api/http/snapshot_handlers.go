package http

import (
	"bytes"
	"image"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/host"
	"github.com/GriffinCanCode/browser-source/internal/host/software"
)

// imageTexture is a texture whose pixels can be read back.
type imageTexture interface {
	Image() *image.RGBA
}

// FrameSnapshot returns the source's last frame as PNG.
func (h *Handlers) FrameSnapshot(c *gin.Context) {
	src, ok := h.lookup(c)
	if !ok {
		return
	}

	var img *image.RGBA
	readable := false
	held := src.Surface().WithTexture(func(tex host.Texture) {
		if it, ok := tex.(imageTexture); ok {
			readable = true
			img = it.Image()
		}
	})
	switch {
	case !held:
		respondError(c, http.StatusNotFound, "source has no frame")
		return
	case !readable:
		respondError(c, http.StatusNotImplemented, "graphics backend cannot read textures back")
		return
	}
	h.writePNG(c, img)
}

// CanvasSnapshot returns the composited canvas as PNG.
func (h *Handlers) CanvasSnapshot(c *gin.Context) {
	if h.canvas == nil {
		respondError(c, http.StatusNotImplemented, "canvas snapshots are unavailable")
		return
	}
	h.writePNG(c, h.canvas.Snapshot())
}

func (h *Handlers) writePNG(c *gin.Context, img image.Image) {
	var buf bytes.Buffer
	if err := software.EncodePNG(&buf, img); err != nil {
		h.log(c).Error("Failed to encode snapshot", zap.Error(err))
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
