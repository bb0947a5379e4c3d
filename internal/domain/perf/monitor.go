package perf

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
)

const (
	maxLatencySamples = 100
	maxTimingSamples  = 200
	maxFrameSamples   = 60
	maxNamedTimings   = 50

	bytesPerQueuedMessage = 512
	bytesPerLock          = 256
	bytesPerUser          = 1024
	bytesPerLatencySample = 16
	bytesPerTimingSample  = 40
	bytesPerFrameSample   = 16
)

// Sink mirrors recorded values into an external metrics system.
type Sink interface {
	RecordMessage(direction, msgType string, size int)
	RecordLatency(ms float64)
	RecordError(kind string, network bool)
	RecordTiming(name string, ms float64)
	SetParticipants(count int)
	SetLocksActive(count int)
	SetQueueDepth(depth int)
}

// MessageStats counts messages and payload bytes.
type MessageStats struct {
	Count     int     `json:"count"`
	TotalSize int     `json:"total_size"`
	LastTime  float64 `json:"last_time"`
}

// Metrics is a point-in-time view of the monitor.
type Metrics struct {
	MessagesPerSecond     float64 `json:"messages_per_second"`
	TotalMessagesSent     int     `json:"total_messages_sent"`
	TotalMessagesReceived int     `json:"total_messages_received"`

	AverageLatencyMs         float64 `json:"average_latency_ms"`
	PeakLatencyMs            float64 `json:"peak_latency_ms"`
	LatencyStandardDeviation float64 `json:"latency_std_dev_ms"`

	MessageQueueSize       int     `json:"message_queue_size"`
	ActiveLockCount        int     `json:"active_lock_count"`
	CachedUserCount        int     `json:"cached_user_count"`
	EstimatedMemoryUsageMB float64 `json:"estimated_memory_mb"`

	MessageFailureRate  float64 `json:"message_failure_rate"`
	TotalErrors         int     `json:"total_errors"`
	NetworkErrors       int     `json:"network_errors"`
	SerializationErrors int     `json:"serialization_errors"`

	AverageFrameTimeMs      float64 `json:"average_frame_time_ms"`
	CollaborationOverheadMs float64 `json:"collaboration_overhead_ms"`

	SessionDurationSeconds float64 `json:"session_duration_seconds"`
	ConnectedUserCount     int     `json:"connected_user_count"`
	SessionActive          bool    `json:"session_active"`
}

type latencySample struct {
	ms float64
	at float64
}

type timingSample struct {
	name string
	ms   float64
	at   float64
}

// Monitor tracks collaboration throughput, latency, errors and timings.
// Recorders are no-ops until Start is called.
type Monitor struct {
	mu         sync.Mutex
	monitoring bool
	startedAt  float64

	sent      MessageStats
	received  MessageStats
	perType   map[protocol.MessageType]*MessageStats
	latencies *ring[latencySample]

	totalErrors         int
	networkErrors       int
	serializationErrors int
	errorKinds          map[string]int

	timings  *ring[timingSample]
	detailed map[string][]float64

	frameTimes *ring[float64]
	overheads  *ring[float64]

	connectedUsers int
	sessionActive  bool
	queueSize      int
	lockCount      int
	userCount      int

	sink Sink
	now  protocol.Clock
	log  *logging.Logger
}

// NewMonitor creates a stopped monitor. sink may be nil.
func NewMonitor(log *logging.Logger, sink Sink) *Monitor {
	if log == nil {
		log = logging.NewNop()
	}
	return &Monitor{
		perType:    make(map[protocol.MessageType]*MessageStats),
		latencies:  newRing[latencySample](maxLatencySamples),
		errorKinds: make(map[string]int),
		timings:    newRing[timingSample](maxTimingSamples),
		detailed:   make(map[string][]float64),
		frameTimes: newRing[float64](maxFrameSamples),
		overheads:  newRing[float64](maxFrameSamples),
		sink:       sink,
		now:        protocol.Now,
		log:        log.Named("perf"),
	}
}

// SetClock replaces the clock. Tests use it.
func (m *Monitor) SetClock(clock protocol.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = clock
}

// Start begins a monitoring session and resets all counters.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.monitoring {
		return
	}
	m.monitoring = true
	m.startedAt = m.now()
	m.resetLocked()
	m.log.Info("performance monitoring started")
}

// Stop ends the session and logs a final report.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.monitoring {
		m.mu.Unlock()
		return
	}
	report := m.reportLocked()
	m.monitoring = false
	m.mu.Unlock()

	m.log.Info("performance monitoring stopped", zap.String("report", report))
}

// SetEnabled starts or stops monitoring.
func (m *Monitor) SetEnabled(enabled bool) {
	if enabled {
		m.Start()
	} else {
		m.Stop()
	}
}

// Enabled reports whether monitoring is active.
func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring
}

// RecordSent records an outbound message.
func (m *Monitor) RecordSent(t protocol.MessageType, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.monitoring {
		return
	}
	now := m.now()
	m.sent.Count++
	m.sent.TotalSize += size
	m.sent.LastTime = now
	m.countTypeLocked(t, size, now)
	if m.sink != nil {
		m.sink.RecordMessage("out", t.String(), size)
	}
}

// RecordReceived records an inbound message and its latency.
func (m *Monitor) RecordReceived(t protocol.MessageType, size int, latencyMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.monitoring {
		return
	}
	now := m.now()
	m.received.Count++
	m.received.TotalSize += size
	m.received.LastTime = now
	m.latencies.add(latencySample{ms: latencyMs, at: now})
	m.countTypeLocked(t, size, now)
	if m.sink != nil {
		m.sink.RecordMessage("in", t.String(), size)
		m.sink.RecordLatency(latencyMs)
	}
}

func (m *Monitor) countTypeLocked(t protocol.MessageType, size int, now float64) {
	s, ok := m.perType[t]
	if !ok {
		s = &MessageStats{}
		m.perType[t] = s
	}
	s.Count++
	s.TotalSize += size
	s.LastTime = now
}

// RecordError records an error of kind. Non-network errors count as
// serialization errors.
func (m *Monitor) RecordError(kind string, network bool) {
	m.mu.Lock()
	if !m.monitoring {
		m.mu.Unlock()
		return
	}
	m.totalErrors++
	if network {
		m.networkErrors++
	} else {
		m.serializationErrors++
	}
	m.errorKinds[kind]++
	m.mu.Unlock()

	if m.sink != nil {
		m.sink.RecordError(kind, network)
	}
	m.log.Warn("collaboration error recorded", zap.String("kind", kind), zap.Bool("network", network))
}

// UpdateSessionInfo records the connected user count and session state.
func (m *Monitor) UpdateSessionInfo(users int, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectedUsers = users
	m.sessionActive = active
	if m.sink != nil {
		m.sink.SetParticipants(users)
	}
}

// UpdateMemoryStats records the sizes used for the memory estimate.
func (m *Monitor) UpdateMemoryStats(queue, locks, users int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueSize = queue
	m.lockCount = locks
	m.userCount = users
	if m.sink != nil {
		m.sink.SetQueueDepth(queue)
		m.sink.SetLocksActive(locks)
	}
}

// RecordFrame records one frame time and the collaboration share of it.
func (m *Monitor) RecordFrame(frameMs, overheadMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.monitoring {
		return
	}
	m.frameTimes.add(frameMs)
	m.overheads.add(overheadMs)
}

// AddTiming records a named duration.
func (m *Monitor) AddTiming(name string, ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.monitoring {
		return
	}
	m.timings.add(timingSample{name: name, ms: ms, at: m.now()})

	recent := append(m.detailed[name], ms)
	if len(recent) > maxNamedTimings {
		recent = recent[len(recent)-maxNamedTimings:]
	}
	m.detailed[name] = recent
	if m.sink != nil {
		m.sink.RecordTiming(name, ms)
	}
}

// Time starts a named timer. Calling the returned func records it.
func (m *Monitor) Time(name string) func() {
	if !m.Enabled() {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.AddTiming(name, float64(time.Since(start))/float64(time.Millisecond))
	}
}

// DetailedTimings returns the average of the recent samples per name.
func (m *Monitor) DetailedTimings() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detailedLocked()
}

func (m *Monitor) detailedLocked() map[string]float64 {
	out := make(map[string]float64, len(m.detailed))
	for name, samples := range m.detailed {
		if len(samples) > 0 {
			out[name] = stat.Mean(samples, nil)
		}
	}
	return out
}

// ErrorKinds returns the count per error kind.
func (m *Monitor) ErrorKinds() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.errorKinds))
	for k, v := range m.errorKinds {
		out[k] = v
	}
	return out
}

// TypeStats returns message counts per type name.
func (m *Monitor) TypeStats() map[string]MessageStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]MessageStats, len(m.perType))
	for t, s := range m.perType {
		out[t.String()] = *s
	}
	return out
}

// Latencies returns the retained latency samples in milliseconds, oldest
// first.
func (m *Monitor) Latencies() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	samples := m.latencies.values()
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.ms
	}
	return out
}

// Reset clears every counter and history.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Monitor) resetLocked() {
	m.sent = MessageStats{}
	m.received = MessageStats{}
	m.perType = make(map[protocol.MessageType]*MessageStats)
	m.latencies.reset()
	m.totalErrors = 0
	m.networkErrors = 0
	m.serializationErrors = 0
	m.errorKinds = make(map[string]int)
	m.timings.reset()
	m.detailed = make(map[string][]float64)
	m.frameTimes.reset()
	m.overheads.reset()
}

// Metrics computes the current metrics.
func (m *Monitor) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metricsLocked()
}

func (m *Monitor) metricsLocked() Metrics {
	var out Metrics

	if m.monitoring {
		out.SessionDurationSeconds = m.now() - m.startedAt
	}
	total := m.sent.Count + m.received.Count
	if out.SessionDurationSeconds > 0 {
		out.MessagesPerSecond = float64(total) / out.SessionDurationSeconds
	}
	out.TotalMessagesSent = m.sent.Count
	out.TotalMessagesReceived = m.received.Count

	if samples := m.latencies.values(); len(samples) > 0 {
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.ms
			out.PeakLatencyMs = max(out.PeakLatencyMs, s.ms)
		}
		out.AverageLatencyMs = stat.Mean(values, nil)
		if len(values) > 1 {
			out.LatencyStandardDeviation = stat.StdDev(values, nil)
		}
	}

	out.MessageQueueSize = m.queueSize
	out.ActiveLockCount = m.lockCount
	out.CachedUserCount = m.userCount
	out.EstimatedMemoryUsageMB = m.estimateMemoryLocked()

	if total > 0 {
		out.MessageFailureRate = float64(m.totalErrors) / float64(total)
	}
	out.TotalErrors = m.totalErrors
	out.NetworkErrors = m.networkErrors
	out.SerializationErrors = m.serializationErrors

	out.AverageFrameTimeMs = average(m.frameTimes.values())
	out.CollaborationOverheadMs = average(m.overheads.values())

	out.ConnectedUserCount = m.connectedUsers
	out.SessionActive = m.sessionActive
	return out
}

func (m *Monitor) estimateMemoryLocked() float64 {
	bytes := m.queueSize*bytesPerQueuedMessage +
		m.lockCount*bytesPerLock +
		m.userCount*bytesPerUser +
		m.latencies.len()*bytesPerLatencySample +
		m.timings.len()*bytesPerTimingSample +
		m.frameTimes.len()*bytesPerFrameSample
	return float64(bytes) / (1024 * 1024)
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Report renders the metrics as a human-readable text report.
func (m *Monitor) Report() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reportLocked()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func (m *Monitor) reportLocked() string {
	metrics := m.metricsLocked()
	timings := m.detailedLocked()

	var b strings.Builder
	b.WriteString("=== LiveBP Performance Report ===\n")
	fmt.Fprintf(&b, "Session Duration: %.1f seconds\n", metrics.SessionDurationSeconds)
	fmt.Fprintf(&b, "Session Active: %s\n", yesNo(metrics.SessionActive))
	fmt.Fprintf(&b, "Connected Users: %d\n\n", metrics.ConnectedUserCount)

	b.WriteString("--- Message Statistics ---\n")
	fmt.Fprintf(&b, "Messages Sent: %d\n", metrics.TotalMessagesSent)
	fmt.Fprintf(&b, "Messages Received: %d\n", metrics.TotalMessagesReceived)
	fmt.Fprintf(&b, "Messages Per Second: %.1f\n\n", metrics.MessagesPerSecond)

	b.WriteString("--- Network Performance ---\n")
	fmt.Fprintf(&b, "Average Latency: %.1f ms\n", metrics.AverageLatencyMs)
	fmt.Fprintf(&b, "Peak Latency: %.1f ms\n", metrics.PeakLatencyMs)
	fmt.Fprintf(&b, "Latency Std Dev: %.1f ms\n\n", metrics.LatencyStandardDeviation)

	b.WriteString("--- Memory Usage ---\n")
	fmt.Fprintf(&b, "Message Queue Size: %d\n", metrics.MessageQueueSize)
	fmt.Fprintf(&b, "Active Locks: %d\n", metrics.ActiveLockCount)
	fmt.Fprintf(&b, "Cached Users: %d\n", metrics.CachedUserCount)
	fmt.Fprintf(&b, "Estimated Memory: %.1f MB\n\n", metrics.EstimatedMemoryUsageMB)

	b.WriteString("--- Error Statistics ---\n")
	fmt.Fprintf(&b, "Total Errors: %d\n", metrics.TotalErrors)
	fmt.Fprintf(&b, "Network Errors: %d\n", metrics.NetworkErrors)
	fmt.Fprintf(&b, "Serialization Errors: %d\n", metrics.SerializationErrors)
	fmt.Fprintf(&b, "Message Failure Rate: %.2f%%\n\n", metrics.MessageFailureRate*100)

	b.WriteString("--- Frame Performance ---\n")
	fmt.Fprintf(&b, "Average Frame Time: %.1f ms\n", metrics.AverageFrameTimeMs)
	fmt.Fprintf(&b, "Collaboration Overhead: %.1f ms\n\n", metrics.CollaborationOverheadMs)

	if len(timings) > 0 {
		names := make([]string, 0, len(timings))
		for name := range timings {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("--- Detailed Timings ---\n")
		for _, name := range names {
			fmt.Fprintf(&b, "%s: %.2f ms\n", name, timings[name])
		}
	}
	return b.String()
}
