package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/browser-source/internal/source"
)

// StatsCollector aggregates per-source state with the process metrics.
type StatsCollector struct {
	plugin  *source.Plugin
	metrics *monitoring.Metrics
}

// NewStatsCollector creates a stats collector
func NewStatsCollector(plugin *source.Plugin, metrics *monitoring.Metrics) *StatsCollector {
	return &StatsCollector{plugin: plugin, metrics: metrics}
}

// StatsSnapshot is the body of GET /stats.
type StatsSnapshot struct {
	Timestamp time.Time                  `json:"timestamp"`
	Sources   []SourceStats              `json:"sources"`
	Metrics   monitoring.MetricsSnapshot `json:"metrics"`
	Summary   StatsSummary               `json:"summary"`
}

// SourceStats is the lifecycle state of one source.
type SourceStats struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Visible     bool   `json:"visible"`
	Active      bool   `json:"active"`
	HasFrame    bool   `json:"has_frame"`
	Creations   int64  `json:"creations"`
	Recreations int64  `json:"recreations"`
}

// StatsSummary provides high-level figures
type StatsSummary struct {
	Sources          int     `json:"sources"`
	Visible          int     `json:"visible"`
	Active           int     `json:"active"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	ErrorRate        float64 `json:"error_rate"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// Collect builds a snapshot.
func (sc *StatsCollector) Collect() StatsSnapshot {
	snap := StatsSnapshot{
		Timestamp: time.Now(),
		Sources:   []SourceStats{},
		Metrics:   sc.metrics.Snapshot(),
	}

	for _, src := range sc.plugin.List() {
		info := src.Info()
		snap.Sources = append(snap.Sources, SourceStats{
			ID:          src.ID().String(),
			Name:        info.Name,
			Visible:     info.Visible,
			Active:      info.Active,
			HasFrame:    src.Surface().HasTexture(),
			Creations:   src.Creations(),
			Recreations: src.Recreations(),
		})
		if info.Visible {
			snap.Summary.Visible++
		}
		if info.Active {
			snap.Summary.Active++
		}
	}
	snap.Summary.Sources = len(snap.Sources)
	snap.Summary.UptimeSeconds = sc.metrics.UptimeSeconds()

	m := snap.Metrics
	if m.RequestCount > 0 {
		snap.Summary.AverageLatencyMs = m.TotalDuration / float64(m.RequestCount) * 1000
	}
	if m.TotalRequests > 0 {
		snap.Summary.ErrorRate = float64(m.TotalErrors) / float64(m.TotalRequests)
	}
	return snap
}

// GetStats returns the current snapshot
func (sc *StatsCollector) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, sc.Collect())
}
