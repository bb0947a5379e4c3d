package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deepdev237/LivePrint/internal/domain/perf"
	"github.com/deepdev237/LivePrint/internal/domain/session"
	"github.com/deepdev237/LivePrint/internal/infrastructure/monitoring"
)

// MetricsAggregator joins the admin API counters with the session's
// performance monitor for the JSON metrics endpoint.
type MetricsAggregator struct {
	metrics *monitoring.Metrics
	hub     *session.Hub
}

// NewMetricsAggregator creates a metrics aggregator
func NewMetricsAggregator(metrics *monitoring.Metrics, hub *session.Hub) *MetricsAggregator {
	return &MetricsAggregator{metrics: metrics, hub: hub}
}

// MetricsSnapshot is a snapshot of all hub metrics
type MetricsSnapshot struct {
	Timestamp   time.Time                    `json:"timestamp"`
	API         monitoring.MetricsSnapshot   `json:"api"`
	Session     perf.Metrics                 `json:"session"`
	MessageType map[string]perf.MessageStats `json:"message_types"`
	Timings     map[string]float64           `json:"timings_ms"`
	Errors      map[string]int               `json:"errors"`
	Summary     MetricsSummary               `json:"summary"`
}

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests     int64   `json:"total_requests"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
	ErrorRate         float64 `json:"error_rate"`
	ActiveConnections int     `json:"active_connections"`
	Participants      int     `json:"participants"`
	ActiveLocks       int     `json:"active_locks"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// GetAggregatedMetrics returns the combined snapshot
func (ma *MetricsAggregator) GetAggregatedMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, ma.Snapshot())
}

// Snapshot collects the combined metrics.
func (ma *MetricsAggregator) Snapshot() MetricsSnapshot {
	mon := ma.hub.Perf()
	stats := mon.Metrics()

	var api monitoring.MetricsSnapshot
	if ma.metrics != nil {
		api = ma.metrics.Snapshot()
	}

	return MetricsSnapshot{
		Timestamp:   time.Now(),
		API:         api,
		Session:     stats,
		MessageType: mon.TypeStats(),
		Timings:     mon.DetailedTimings(),
		Errors:      mon.ErrorKinds(),
		Summary:     ma.summary(api, stats),
	}
}

func (ma *MetricsAggregator) summary(api monitoring.MetricsSnapshot, stats perf.Metrics) MetricsSummary {
	var errorRate float64
	if api.TotalRequests > 0 {
		errorRate = float64(api.TotalErrors) / float64(api.TotalRequests)
	}

	return MetricsSummary{
		TotalRequests:     api.TotalRequests,
		AverageLatencyMs:  stats.AverageLatencyMs,
		ErrorRate:         errorRate,
		ActiveConnections: int(api.ActiveConnections),
		Participants:      stats.ConnectedUserCount,
		ActiveLocks:       stats.ActiveLockCount,
		UptimeSeconds:     api.UptimeSeconds,
	}
}
