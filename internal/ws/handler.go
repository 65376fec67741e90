package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/browser-source/internal/shared/id"
	"github.com/GriffinCanCode/browser-source/internal/shared/utils"
)

// Request types.
const (
	RequestEmitEvent = "emit_event"
	RequestPing      = "ping"
)

// Status codes carried in requestStatus.
const (
	StatusSuccess            = 100
	StatusMissingRequestData = 300
	StatusMissingField       = 301
	StatusInvalidPayload     = 400
	StatusUnknownRequestType = 204
)

const (
	maxMessageSize = 64 << 10
	writeWait      = 10 * time.Second
)

var payloads = utils.DefaultPayloadValidator()

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // dock pages connect from arbitrary origins
	},
}

// Broadcaster delivers a page event to every source. *source.Plugin
// implements it.
type Broadcaster interface {
	DispatchJSEvent(eventName, jsonString string) int
}

// Request is one vendor request.
type Request struct {
	RequestType string                 `json:"requestType"`
	RequestID   string                 `json:"requestId"`
	RequestData map[string]interface{} `json:"requestData"`
}

// RequestStatus reports how a request went.
type RequestStatus struct {
	Result  bool   `json:"result"`
	Code    int    `json:"code"`
	Comment string `json:"comment,omitempty"`
}

// Response answers one Request.
type Response struct {
	RequestType   string                 `json:"requestType"`
	RequestID     string                 `json:"requestId"`
	RequestStatus RequestStatus          `json:"requestStatus"`
	ResponseData  map[string]interface{} `json:"responseData,omitempty"`
}

// Handler serves the vendor request socket.
type Handler struct {
	events  Broadcaster
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	logger  *zap.Logger
}

// NewHandler creates a vendor handler. tracer may be nil.
func NewHandler(events Broadcaster, metrics *monitoring.Metrics, tracer *tracing.Tracer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		events:  events,
		metrics: metrics,
		tracer:  tracer,
		logger:  logger.Named("vendor"),
	}
}

// HandleConnection upgrades the request and answers vendor requests until
// the peer disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	cid := id.NewConnectionID()
	logger := h.logger.With(zap.String("connection_id", cid.String()))
	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()
	logger.Debug("Vendor client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Vendor read error", zap.Error(err))
			}
			break
		}

		resp := h.handle(c, data)
		h.metrics.RecordWSMessage("in", resp.RequestType)
		if err := h.send(conn, resp); err != nil {
			logger.Warn("Vendor write error", zap.Error(err))
			break
		}
		h.metrics.RecordWSMessage("out", resp.RequestType)
	}
	logger.Debug("Vendor client disconnected")
}

// handle answers one raw request.
func (h *Handler) handle(c *gin.Context, data []byte) Response {
	var req Request
	if err := sonic.Unmarshal(data, &req); err != nil {
		return Response{
			RequestType:   "unknown",
			RequestID:     uuid.NewString(),
			RequestStatus: failure(StatusInvalidPayload, "malformed request: "+err.Error()),
		}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.RequestType == "" {
		req.RequestType = "unknown"
	}

	resp := Response{RequestType: req.RequestType, RequestID: req.RequestID}

	if h.tracer != nil {
		span, _ := h.tracer.StartSpan(c.Request.Context(), "vendor "+req.RequestType)
		span.SetTag("request_id", req.RequestID)
		defer func() {
			if !resp.RequestStatus.Result {
				span.SetTag("error", resp.RequestStatus.Comment)
			}
			span.SetStatus(resp.RequestStatus.Code)
			span.Finish()
			h.tracer.Submit(span)
		}()
	}

	switch req.RequestType {
	case RequestEmitEvent:
		resp.RequestStatus, resp.ResponseData = h.emitEvent(req)
	case RequestPing:
		resp.RequestStatus = RequestStatus{Result: true, Code: StatusSuccess}
		resp.ResponseData = map[string]interface{}{"pong": time.Now().Unix()}
	default:
		resp.RequestStatus = failure(StatusUnknownRequestType, "unknown request type")
	}
	return resp
}

// emitEvent broadcasts requestData.event_name to every source. A missing
// event_data reaches the pages as an empty object.
func (h *Handler) emitEvent(req Request) (RequestStatus, map[string]interface{}) {
	if req.RequestData == nil {
		return failure(StatusMissingRequestData, "requestData is required"), nil
	}
	name, _ := req.RequestData["event_name"].(string)
	if name == "" {
		return failure(StatusMissingField, "event_name is required"), nil
	}
	if err := utils.ValidateEventName(name); err != nil {
		return failure(StatusInvalidPayload, err.Error()), nil
	}

	payload, err := payloads.Encode(req.RequestData["event_data"], "{}")
	if err != nil {
		return failure(StatusInvalidPayload, "event_data: "+err.Error()), nil
	}

	reached := h.events.DispatchJSEvent(name, payload)
	h.logger.Debug("Vendor event broadcast",
		zap.String("request_id", req.RequestID),
		zap.String("event", name),
		zap.Int("reached", reached))
	return RequestStatus{Result: true, Code: StatusSuccess}, map[string]interface{}{"reached": reached}
}

func failure(code int, comment string) RequestStatus {
	return RequestStatus{Result: false, Code: code, Comment: comment}
}

func (h *Handler) send(conn *websocket.Conn, resp Response) error {
	data, err := sonic.Marshal(resp)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
