package perf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
)

type fakeClock struct{ t float64 }

func (c *fakeClock) now() float64 { return c.t }

type recordingSink struct {
	messages     int
	latencies    []float64
	errors       int
	timings      map[string]int
	participants int
}

func (s *recordingSink) RecordMessage(string, string, int) { s.messages++ }
func (s *recordingSink) RecordLatency(ms float64)          { s.latencies = append(s.latencies, ms) }
func (s *recordingSink) RecordError(string, bool)          { s.errors++ }
func (s *recordingSink) RecordTiming(name string, _ float64) {
	if s.timings == nil {
		s.timings = make(map[string]int)
	}
	s.timings[name]++
}
func (s *recordingSink) SetParticipants(n int) { s.participants = n }
func (s *recordingSink) SetLocksActive(int)    {}
func (s *recordingSink) SetQueueDepth(int)     {}

func newTestMonitor(t *testing.T) (*Monitor, *fakeClock, *recordingSink) {
	t.Helper()
	clock := &fakeClock{t: 100}
	sink := &recordingSink{}
	m := NewMonitor(nil, sink)
	m.SetClock(clock.now)
	m.Start()
	return m, clock, sink
}

func TestRecordersIgnoredWhenStopped(t *testing.T) {
	m := NewMonitor(nil, nil)

	m.RecordSent(protocol.MessageWirePreview, 10)
	m.RecordReceived(protocol.MessageWirePreview, 10, 5)
	m.RecordError("decode", false)
	m.AddTiming("relay", 1)

	metrics := m.Metrics()
	assert.Zero(t, metrics.TotalMessagesSent)
	assert.Zero(t, metrics.TotalMessagesReceived)
	assert.Zero(t, metrics.TotalErrors)
	assert.Empty(t, m.DetailedTimings())
}

func TestMessageRateAndLatency(t *testing.T) {
	m, clock, sink := newTestMonitor(t)

	m.RecordSent(protocol.MessageNodeOperation, 100)
	m.RecordReceived(protocol.MessageNodeOperation, 50, 10)
	m.RecordReceived(protocol.MessageWirePreview, 50, 30)
	m.RecordReceived(protocol.MessageWirePreview, 50, 20)
	clock.t += 2

	metrics := m.Metrics()
	assert.Equal(t, 1, metrics.TotalMessagesSent)
	assert.Equal(t, 3, metrics.TotalMessagesReceived)
	assert.InDelta(t, 2.0, metrics.MessagesPerSecond, 1e-9)
	assert.InDelta(t, 20.0, metrics.AverageLatencyMs, 1e-9)
	assert.InDelta(t, 30.0, metrics.PeakLatencyMs, 1e-9)
	assert.InDelta(t, 10.0, metrics.LatencyStandardDeviation, 1e-9)
	assert.InDelta(t, 2.0, metrics.SessionDurationSeconds, 1e-9)

	assert.Equal(t, 4, sink.messages)
	assert.Len(t, sink.latencies, 3)

	types := m.TypeStats()
	assert.Equal(t, 2, types["NodeOperation"].Count)
	assert.Equal(t, 100, types["WirePreview"].TotalSize)
}

func TestSingleLatencyHasZeroDeviation(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	m.RecordReceived(protocol.MessageHeartbeat, 1, 42)

	metrics := m.Metrics()
	assert.InDelta(t, 42.0, metrics.AverageLatencyMs, 1e-9)
	assert.Zero(t, metrics.LatencyStandardDeviation)
}

func TestLatencyHistoryIsBounded(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	for i := 0; i < maxLatencySamples+20; i++ {
		m.RecordReceived(protocol.MessageHeartbeat, 1, float64(i))
	}

	latencies := m.Latencies()
	require.Len(t, latencies, maxLatencySamples)
	assert.Equal(t, 20.0, latencies[0])
	assert.Equal(t, float64(maxLatencySamples+19), latencies[len(latencies)-1])
}

func TestErrors(t *testing.T) {
	m, _, sink := newTestMonitor(t)
	m.RecordSent(protocol.MessageNodeOperation, 1)
	m.RecordSent(protocol.MessageNodeOperation, 1)
	m.RecordSent(protocol.MessageNodeOperation, 1)
	m.RecordSent(protocol.MessageNodeOperation, 1)
	m.RecordError("socket", true)
	m.RecordError("decode", false)

	metrics := m.Metrics()
	assert.Equal(t, 2, metrics.TotalErrors)
	assert.Equal(t, 1, metrics.NetworkErrors)
	assert.Equal(t, 1, metrics.SerializationErrors)
	assert.InDelta(t, 0.5, metrics.MessageFailureRate, 1e-9)
	assert.Equal(t, map[string]int{"socket": 1, "decode": 1}, m.ErrorKinds())
	assert.Equal(t, 2, sink.errors)
}

func TestDetailedTimingsKeepRecentSamples(t *testing.T) {
	m, _, sink := newTestMonitor(t)
	for i := 0; i < maxNamedTimings; i++ {
		m.AddTiming("relay", 100)
	}
	for i := 0; i < maxNamedTimings; i++ {
		m.AddTiming("relay", 2)
	}
	m.AddTiming("lock", 4)

	timings := m.DetailedTimings()
	assert.InDelta(t, 2.0, timings["relay"], 1e-9)
	assert.InDelta(t, 4.0, timings["lock"], 1e-9)
	assert.Equal(t, 2*maxNamedTimings, sink.timings["relay"])
}

func TestTimeRecordsNamedTiming(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	stop := m.Time("encode")
	stop()

	_, ok := m.DetailedTimings()["encode"]
	assert.True(t, ok)
}

func TestMemoryEstimateAndFrames(t *testing.T) {
	m, _, sink := newTestMonitor(t)
	m.UpdateMemoryStats(2048, 0, 0)
	m.UpdateSessionInfo(3, true)
	m.RecordFrame(16, 1)
	m.RecordFrame(18, 3)

	metrics := m.Metrics()
	// 2048 queued messages at 512 B plus two frame samples.
	assert.InDelta(t, 1.0+32.0/(1024*1024), metrics.EstimatedMemoryUsageMB, 1e-9)
	assert.InDelta(t, 17.0, metrics.AverageFrameTimeMs, 1e-9)
	assert.InDelta(t, 2.0, metrics.CollaborationOverheadMs, 1e-9)
	assert.Equal(t, 3, metrics.ConnectedUserCount)
	assert.True(t, metrics.SessionActive)
	assert.Equal(t, 3, sink.participants)
}

func TestStartResets(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	m.RecordSent(protocol.MessageNodeOperation, 1)
	m.Stop()
	assert.False(t, m.Enabled())

	m.Start()
	assert.True(t, m.Enabled())
	assert.Zero(t, m.Metrics().TotalMessagesSent)
}

func TestReport(t *testing.T) {
	m, clock, _ := newTestMonitor(t)
	m.UpdateSessionInfo(2, true)
	m.RecordSent(protocol.MessageNodeOperation, 1)
	m.AddTiming("zeta", 1.5)
	m.AddTiming("alpha", 0.25)
	clock.t += 10

	report := m.Report()
	assert.Contains(t, report, "=== LiveBP Performance Report ===")
	assert.Contains(t, report, "Session Duration: 10.0 seconds")
	assert.Contains(t, report, "Session Active: Yes")
	assert.Contains(t, report, "Connected Users: 2")
	assert.Contains(t, report, "Messages Sent: 1")
	assert.Contains(t, report, "Message Failure Rate: 0.00%")
	assert.Contains(t, report, "--- Detailed Timings ---")
	assert.Contains(t, report, "alpha: 0.25 ms\nzeta: 1.50 ms\n")
}

func TestRing(t *testing.T) {
	r := newRing[int](3)
	assert.Empty(t, r.values())

	for i := 1; i <= 4; i++ {
		r.add(i)
	}
	assert.Equal(t, 3, r.len())
	assert.Equal(t, []int{2, 3, 4}, r.values())

	r.reset()
	assert.Zero(t, r.len())
}
