package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the hub
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Collaboration message metrics
	Messages       *prometheus.CounterVec
	MessageBytes   *prometheus.CounterVec
	Throttled      *prometheus.CounterVec
	Dropped        *prometheus.CounterVec
	Latency        prometheus.Histogram
	Errors         *prometheus.CounterVec
	OperationTimes *prometheus.HistogramVec

	// Session metrics
	Participants prometheus.Gauge
	LocksActive  prometheus.Gauge
	LockChanges  *prometheus.CounterVec
	QueueDepth   prometheus.Gauge

	// Notification metrics
	Notifications *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
	stop      chan struct{}
	stopOnce  sync.Once

	// Snapshot for JSON API
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for the JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveConnections int64   `json:"active_connections"`
	TotalDuration     float64 `json:"total_duration_seconds"`
	RequestCount      int64   `json:"request_count"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector registered with reg. A nil reg
// uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		stop:      make(chan struct{}),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livebp_http_requests_total",
				Help: "Total number of admin API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "livebp_http_request_duration_seconds",
				Help:    "Admin API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "path"},
		),

		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livebp_messages_total",
				Help: "Collaboration messages by direction and type",
			},
			[]string{"direction", "type"},
		),
		MessageBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livebp_message_payload_bytes_total",
				Help: "Collaboration payload bytes by direction",
			},
			[]string{"direction"},
		),
		Throttled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livebp_messages_throttled_total",
				Help: "Messages dropped by the throttler",
			},
			[]string{"type"},
		),
		Dropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livebp_messages_dropped_total",
				Help: "Messages dropped before relay, by reason",
			},
			[]string{"reason"},
		),
		Latency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "livebp_message_latency_ms",
				Help:    "Sender to hub latency in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
			},
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livebp_errors_total",
				Help: "Collaboration errors by kind",
			},
			[]string{"kind", "network"},
		),
		OperationTimes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "livebp_operation_duration_ms",
				Help:    "Timed hub operations in milliseconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 25, 50},
			},
			[]string{"name"},
		),

		Participants: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "livebp_participants",
				Help: "Connected participants",
			},
		),
		LocksActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "livebp_locks_active",
				Help: "Granted node locks",
			},
		),
		LockChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livebp_lock_changes_total",
				Help: "Lock state transitions",
			},
			[]string{"state"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "livebp_outbound_queue_depth",
				Help: "Messages waiting in participant outbound queues",
			},
		),

		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livebp_notifications_total",
				Help: "Collaboration notifications by type",
			},
			[]string{"type"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "livebp_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "livebp_uptime_seconds",
				Help: "Hub uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		}
	}
}

// Close stops the uptime updater
func (m *Metrics) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// RecordHTTPRequest records an admin API request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordMessage records a collaboration message
func (m *Metrics) RecordMessage(direction, msgType string, size int) {
	m.Messages.WithLabelValues(direction, msgType).Inc()
	m.MessageBytes.WithLabelValues(direction).Add(float64(size))
}

// RecordLatency records sender to hub latency
func (m *Metrics) RecordLatency(ms float64) {
	m.Latency.Observe(ms)
}

// RecordThrottled records a throttled message
func (m *Metrics) RecordThrottled(msgType string) {
	m.Throttled.WithLabelValues(msgType).Inc()
}

// RecordDropped records a message dropped before relay
func (m *Metrics) RecordDropped(reason string) {
	m.Dropped.WithLabelValues(reason).Inc()
}

// RecordError records a collaboration error
func (m *Metrics) RecordError(kind string, network bool) {
	label := "false"
	if network {
		label = "true"
	}
	m.Errors.WithLabelValues(kind, label).Inc()
}

// RecordTiming records a timed operation
func (m *Metrics) RecordTiming(name string, ms float64) {
	m.OperationTimes.WithLabelValues(name).Observe(ms)
}

// RecordLockChange records a lock transition
func (m *Metrics) RecordLockChange(state string) {
	m.LockChanges.WithLabelValues(state).Inc()
}

// RecordNotification records a shown notification
func (m *Metrics) RecordNotification(notificationType string) {
	m.Notifications.WithLabelValues(notificationType).Inc()
}

// SetParticipants sets the number of connected participants
func (m *Metrics) SetParticipants(count int) {
	m.Participants.Set(float64(count))
}

// SetLocksActive sets the number of granted locks
func (m *Metrics) SetLocksActive(count int) {
	m.LocksActive.Set(float64(count))
}

// SetQueueDepth sets the total outbound queue depth
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
