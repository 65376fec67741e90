package http

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/shared/utils"
)

// eventRequest carries a page event. EventData is any JSON value.
type eventRequest struct {
	EventName string      `json:"event_name"`
	EventData interface{} `json:"event_data"`
}

func bindEvent(c *gin.Context) (eventRequest, bool) {
	var req eventRequest
	body, err := c.GetRawData()
	if err == nil {
		err = sonic.Unmarshal(body, &req)
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return req, false
	}
	if err := utils.ValidateEventName(req.EventName); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

var payloads = utils.DefaultPayloadValidator()

// SourceEvent dispatches a page event to one source. A missing payload
// reaches the page as null.
func (h *Handlers) SourceEvent(c *gin.Context) {
	src, ok := h.lookup(c)
	if !ok {
		return
	}
	req, ok := bindEvent(c)
	if !ok {
		return
	}
	done := h.metrics.TrackEventOperation("source_event")

	payload, err := payloads.Encode(req.EventData, "")
	if err != nil {
		done("invalid")
		respondError(c, http.StatusBadRequest, "Invalid event_data: "+err.Error())
		return
	}
	src.HandleJavaScriptEvent(req.EventName, payload)
	done("success")

	h.log(c).Debug("Source event dispatched",
		zap.String("source_id", src.ID().String()),
		zap.String("event", req.EventName))
	respondOK(c)
}

// EmitEvent broadcasts a page event to every source. A missing payload
// reaches the pages as an empty object.
func (h *Handlers) EmitEvent(c *gin.Context) {
	req, ok := bindEvent(c)
	if !ok {
		return
	}
	done := h.metrics.TrackEventOperation("emit_event")

	payload, err := payloads.Encode(req.EventData, "{}")
	if err != nil {
		done("invalid")
		respondError(c, http.StatusBadRequest, "Invalid event_data: "+err.Error())
		return
	}
	reached := h.plugin.DispatchJSEvent(req.EventName, payload)
	done("success")

	h.log(c).Debug("Event broadcast",
		zap.String("event", req.EventName),
		zap.Int("reached", reached))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"reached": reached,
	})
}
