package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/browser-source/internal/engine"
	"github.com/GriffinCanCode/browser-source/internal/source"
)

type mouseRequest struct {
	Type       string `json:"type" binding:"required,oneof=click move wheel"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Modifiers  uint32 `json:"modifiers"`
	Button     string `json:"button"`
	Up         bool   `json:"up"`
	ClickCount int    `json:"click_count"`
	Leave      bool   `json:"leave"`
	DeltaX     int    `json:"delta_x"`
	DeltaY     int    `json:"delta_y"`
}

var mouseButtons = map[string]engine.MouseButton{
	"":       engine.MouseLeft,
	"left":   engine.MouseLeft,
	"middle": engine.MouseMiddle,
	"right":  engine.MouseRight,
}

// Mouse forwards a click, move or wheel event to the page.
func (h *Handlers) Mouse(c *gin.Context) {
	src, ok := h.lookup(c)
	if !ok {
		return
	}
	var req mouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	ev := engine.MouseEvent{X: req.X, Y: req.Y, Modifiers: req.Modifiers}
	switch req.Type {
	case "click":
		button, known := mouseButtons[req.Button]
		if !known {
			respondError(c, http.StatusBadRequest, "unknown button: "+req.Button)
			return
		}
		count := req.ClickCount
		if count <= 0 {
			count = 1
		}
		src.SendMouseClick(ev, button, req.Up, count)
	case "move":
		src.SendMouseMove(ev, req.Leave)
	case "wheel":
		src.SendMouseWheel(ev, req.DeltaX, req.DeltaY)
	}
	respondOK(c)
}

type keyRequest struct {
	Text           string `json:"text"`
	NativeVKey     int    `json:"native_vkey"`
	NativeScancode int    `json:"native_scancode"`
	Modifiers      uint32 `json:"modifiers"`
	Up             bool   `json:"up"`
}

// Key forwards a key press or release to the page.
func (h *Handlers) Key(c *gin.Context) {
	src, ok := h.lookup(c)
	if !ok {
		return
	}
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	src.SendKeyClick(source.KeyInput{
		Text:           req.Text,
		NativeVKey:     req.NativeVKey,
		NativeScancode: req.NativeScancode,
		Modifiers:      req.Modifiers,
	}, req.Up)
	respondOK(c)
}

// Focus gives or takes page focus.
func (h *Handlers) Focus(c *gin.Context) {
	src, ok := h.lookup(c)
	if !ok {
		return
	}
	var req struct {
		Focus *bool `json:"focus" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	src.SendFocus(*req.Focus)
	respondOK(c)
}
