package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Operation metrics
	OperationCalls    *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Bridge metrics
	EnvelopeMessages *prometheus.CounterVec
	CallbacksPending prometheus.Gauge
	ScriptErrors     *prometheus.CounterVec

	// Render metrics
	FramesPainted      prometheus.Counter
	TextureRecreations prometheus.Counter
	AudioPackets       prometheus.Counter
	ConsoleMessages    *prometheus.CounterVec

	// Source metrics
	SourcesActive     prometheus.Gauge
	BrowsersCreated   prometheus.Counter
	BrowserRecreation prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot MetricsSnapshot
	mu       sync.RWMutex
	stop     chan struct{}
	stopOnce sync.Once
}

// MetricsSnapshot holds current metric values for the JSON API
type MetricsSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	ActiveSources int64   `json:"active_sources"`
	FramesPainted int64   `json:"frames_painted"`
	Envelopes     int64   `json:"envelopes"`
	TotalDuration float64 `json:"total_duration"`
	RequestCount  int64   `json:"request_count"`
}

// NewMetrics creates a metrics collector registered on reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		stop:      make(chan struct{}),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browser_source_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "browser_source_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "browser_source_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "browser_source_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		OperationCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browser_source_operation_calls_total",
				Help: "Total number of timed operations",
			},
			[]string{"component", "operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "browser_source_operation_duration_seconds",
				Help:    "Operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"component", "operation"},
		),

		EnvelopeMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browser_source_envelope_messages_total",
				Help: "Envelope messages by direction and name",
			},
			[]string{"direction", "name"},
		),
		CallbacksPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "browser_source_callbacks_pending",
				Help: "Script callbacks awaiting a reply",
			},
		),
		ScriptErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browser_source_script_errors_total",
				Help: "Exceptions thrown by page script invoked from the bridge",
			},
			[]string{"phase"},
		),

		FramesPainted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "browser_source_frames_painted_total",
				Help: "Painted frames uploaded to textures",
			},
		),
		TextureRecreations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "browser_source_texture_recreations_total",
				Help: "Textures destroyed because the frame size changed",
			},
		),
		AudioPackets: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "browser_source_audio_packets_total",
				Help: "Audio packets republished to the host",
			},
		),
		ConsoleMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browser_source_console_messages_total",
				Help: "Page console messages relayed to the log",
			},
			[]string{"level"},
		),

		SourcesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "browser_source_sources",
				Help: "Number of live sources",
			},
		),
		BrowsersCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "browser_source_browsers_created_total",
				Help: "Browser instances created",
			},
		),
		BrowserRecreation: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "browser_source_browser_recreations_total",
				Help: "Browser instances torn down for recreation by a settings change",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "browser_source_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browser_source_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "browser_source_uptime_seconds",
				Help: "Uptime in seconds",
			},
		),
	}

	return m
}

// StartUptime updates the uptime gauge every second until Close
func (m *Metrics) StartUptime() {
	if m == nil {
		return
	}
	go m.updateUptime()
}

// Close stops the uptime updater
func (m *Metrics) Close() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		case <-m.stop:
			return
		}
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOperation records a timed operation
func (m *Metrics) RecordOperation(component, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationCalls.WithLabelValues(component, operation, status).Inc()
	m.OperationDuration.WithLabelValues(component, operation).Observe(duration.Seconds())
}

// RecordEnvelope records an envelope message. direction is "sent" or "received".
func (m *Metrics) RecordEnvelope(direction, name string) {
	if m == nil {
		return
	}
	m.EnvelopeMessages.WithLabelValues(direction, name).Inc()
	m.mu.Lock()
	m.snapshot.Envelopes++
	m.mu.Unlock()
}

// SetCallbacksPending sets the number of pending script callbacks
func (m *Metrics) SetCallbacksPending(n int) {
	if m == nil {
		return
	}
	m.CallbacksPending.Set(float64(n))
}

// RecordScriptError records an exception thrown by page script
func (m *Metrics) RecordScriptError(phase string) {
	if m == nil {
		return
	}
	m.ScriptErrors.WithLabelValues(phase).Inc()
}

// RecordFrame records a painted frame
func (m *Metrics) RecordFrame() {
	if m == nil {
		return
	}
	m.FramesPainted.Inc()
	m.mu.Lock()
	m.snapshot.FramesPainted++
	m.mu.Unlock()
}

// RecordTextureRecreation records a texture dropped on resize
func (m *Metrics) RecordTextureRecreation() {
	if m == nil {
		return
	}
	m.TextureRecreations.Inc()
}

// RecordAudioPacket records a republished audio packet
func (m *Metrics) RecordAudioPacket() {
	if m == nil {
		return
	}
	m.AudioPackets.Inc()
}

// RecordConsole records a relayed console message
func (m *Metrics) RecordConsole(level string) {
	if m == nil {
		return
	}
	m.ConsoleMessages.WithLabelValues(level).Inc()
}

// SetSourcesActive sets the number of live sources
func (m *Metrics) SetSourcesActive(count int) {
	if m == nil {
		return
	}
	m.SourcesActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSources = int64(count)
	m.mu.Unlock()
}

// IncBrowsersCreated increments the browser creation counter
func (m *Metrics) IncBrowsersCreated() {
	if m == nil {
		return
	}
	m.BrowsersCreated.Inc()
}

// IncBrowserRecreations increments the recreation counter
func (m *Metrics) IncBrowserRecreations() {
	if m == nil {
		return
	}
	m.BrowserRecreation.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns the current JSON snapshot
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeSeconds returns the time since the collector was created
func (m *Metrics) UptimeSeconds() float64 {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime).Seconds()
}
