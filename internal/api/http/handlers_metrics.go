package http

import (
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
)

// HandlerMetrics times control API operations.
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// TrackSourceOperation starts timing a source operation. The returned
// function records it with the given status.
func (hm *HandlerMetrics) TrackSourceOperation(operation string) func(status string) {
	timer := monitoring.NewTimer(hm.metrics, "source_api", operation)
	return func(status string) {
		timer.Stop(status)
	}
}

// TrackEventOperation starts timing an event dispatch.
func (hm *HandlerMetrics) TrackEventOperation(operation string) func(status string) {
	timer := monitoring.NewTimer(hm.metrics, "event_api", operation)
	return func(status string) {
		timer.Stop(status)
	}
}
