package diagnostics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/deepdev237/LivePrint/internal/domain/locks"
	"github.com/deepdev237/LivePrint/internal/domain/perf"
	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/domain/throttle"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
)

// Checks run on a simulated clock starting here so throttle and lock
// timing is deterministic.
const simStart = 1000.0

type simClock struct{ t float64 }

func (c *simClock) now() float64             { return c.t }
func (c *simClock) advance(d time.Duration) { c.t += d.Seconds() }

func fail(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

func testWirePreview(user string) protocol.WirePreview {
	return protocol.WirePreview{
		NodeID:    uuid.New(),
		PinName:   "Exec",
		Start:     protocol.Vector2D{X: 100, Y: 200},
		End:       protocol.Vector2D{X: 340.5, Y: 260.25},
		UserID:    user,
		Timestamp: simStart,
	}
}

func testNodeOperation(kind protocol.NodeOperationKind, user string) protocol.NodeOperation {
	op := protocol.NodeOperation{
		Kind:      kind,
		NodeID:    uuid.New(),
		Position:  protocol.Vector2D{X: 300, Y: 400},
		UserID:    user,
		Timestamp: simStart,
	}
	switch kind {
	case protocol.OpAdd:
		op.NodeClass = "K2Node_CallFunction"
	case protocol.OpPinConnect, protocol.OpPinDisconnect:
		op.TargetNodeID = uuid.New()
		op.PinName = "Then"
		op.TargetPinName = "Execute"
	case protocol.OpPropertyChange:
		op.PropertyData = `{"NodeComment":"door logic"}`
	}
	return op
}

func checkWirePreviewSerialization() error {
	in := testWirePreview("TestUser1")
	for _, binary := range []bool{true, false} {
		encode := protocol.EncodeWirePreviewJSON
		if binary {
			encode = protocol.EncodeWirePreview
		}
		data, err := encode(in)
		if err != nil {
			return fail("encode (binary=%t): %v", binary, err)
		}
		out, err := protocol.DecodeWirePreview(data)
		if err != nil {
			return fail("decode (binary=%t): %v", binary, err)
		}
		if out.NodeID != in.NodeID || out.UserID != in.UserID || out.PinName != in.PinName {
			return fail("identity fields changed (binary=%t)", binary)
		}
		if !protocol.Nearby(out.End, in.End, 0.01) || !protocol.Nearby(out.Start, in.Start, 0.01) {
			return fail("positions drifted (binary=%t)", binary)
		}
	}
	return nil
}

func checkNodeOperationSerialization() error {
	kinds := []protocol.NodeOperationKind{
		protocol.OpAdd, protocol.OpDelete, protocol.OpMove,
		protocol.OpPinConnect, protocol.OpPinDisconnect, protocol.OpPropertyChange,
	}
	for _, kind := range kinds {
		in := testNodeOperation(kind, "TestUser2")
		data, err := protocol.EncodeNodeOperation(in)
		if err != nil {
			return fail("encode %s: %v", kind, err)
		}
		out, err := protocol.DecodeNodeOperation(data)
		if err != nil {
			return fail("decode %s: %v", kind, err)
		}
		if out != in {
			return fail("%s changed in round trip", kind)
		}
		if err := protocol.ValidateNodeOperation(out); err != nil {
			return fail("%s: %v", kind, err)
		}
	}
	return nil
}

func checkNodeLockSerialization() error {
	in := protocol.NodeLock{
		NodeID:     uuid.New(),
		State:      protocol.Locked,
		UserID:     "TestUser3",
		LockTime:   simStart,
		ExpiryTime: simStart + 30,
	}
	data, err := protocol.EncodeNodeLock(in)
	if err != nil {
		return fail("encode: %v", err)
	}
	out, err := protocol.DecodeNodeLock(data)
	if err != nil {
		return fail("decode: %v", err)
	}
	if out != in {
		return fail("lock changed in round trip")
	}
	return protocol.ValidateNodeLock(out)
}

func checkMessageSerialization() error {
	target := protocol.Target{BlueprintID: uuid.New(), GraphID: uuid.New()}
	in, err := protocol.NewNodeOperationMessage(target, testNodeOperation(protocol.OpAdd, "TestUser4"))
	if err != nil {
		return fail("build: %v", err)
	}
	data, err := protocol.EncodeMessage(in)
	if err != nil {
		return fail("encode: %v", err)
	}
	out, err := protocol.DecodeMessage(data)
	if err != nil {
		return fail("decode: %v", err)
	}
	if out.ID != in.ID || out.Type != in.Type || out.BlueprintID != in.BlueprintID ||
		out.GraphID != in.GraphID || out.UserID != in.UserID || string(out.Payload) != string(in.Payload) {
		return fail("message changed in round trip")
	}
	return protocol.ValidateMessage(out)
}

func checkInvalidData() error {
	if _, err := protocol.DecodeWirePreview(nil); !errors.Is(err, protocol.ErrEmptyPayload) {
		return fail("empty wire preview decoded: %v", err)
	}
	if _, err := protocol.DecodeNodeOperation([]byte("{not json")); err == nil {
		return fail("malformed node operation decoded")
	}
	if _, err := protocol.DecodeWirePreview([]byte{0xc1, 0xff, 0x00}); err == nil {
		return fail("garbage wire preview decoded")
	}

	msg := protocol.NewHeartbeat(protocol.Target{BlueprintID: uuid.New(), GraphID: uuid.New()}, "")
	if protocol.ValidateMessage(msg) == nil {
		return fail("message without user accepted")
	}
	msg.UserID = "TestUser"
	msg.BlueprintID = uuid.Nil
	if protocol.ValidateMessage(msg) == nil {
		return fail("message without blueprint accepted")
	}

	add := testNodeOperation(protocol.OpAdd, "TestUser")
	add.NodeClass = ""
	if protocol.ValidateNodeOperation(add) == nil {
		return fail("add without node class accepted")
	}
	connect := testNodeOperation(protocol.OpPinConnect, "TestUser")
	connect.TargetNodeID = uuid.Nil
	if protocol.ValidateNodeOperation(connect) == nil {
		return fail("pin connect without target accepted")
	}
	lock := protocol.NodeLock{NodeID: uuid.New(), UserID: "TestUser", LockTime: simStart, ExpiryTime: simStart}
	if protocol.ValidateNodeLock(lock) == nil {
		return fail("lock expiring when taken accepted")
	}
	return nil
}

func checkWirePreviewThrottling() error {
	th := throttle.New()
	clock := &simClock{t: simStart}
	allowed := 0
	for i := 0; i < 20; i++ {
		if th.Allow(protocol.MessageWirePreview, "ThrottleTestUser", clock.now()) {
			allowed++
		}
		clock.advance(10 * time.Millisecond)
	}
	if allowed == 0 || allowed >= 20 {
		return fail("allowed %d of 20 rapid previews", allowed)
	}
	if allowed > 3 {
		return fail("allowed %d previews in 200ms at 10 Hz", allowed)
	}
	return nil
}

func checkStructuralNotThrottled() error {
	th := throttle.New()
	for _, t := range []protocol.MessageType{
		protocol.MessageNodeOperation, protocol.MessageLockRequest, protocol.MessageLockRelease,
	} {
		for i := 0; i < 20; i++ {
			if !th.Allow(t, "StructuralUser", simStart) {
				return fail("%s throttled on attempt %d", t, i+1)
			}
		}
	}
	return nil
}

func checkPerUserThrottling() error {
	th := throttle.New()
	if !th.Allow(protocol.MessageWirePreview, "UserA", simStart) {
		return fail("first preview from UserA throttled")
	}
	if th.Allow(protocol.MessageWirePreview, "UserA", simStart+0.01) {
		return fail("second preview from UserA not throttled")
	}
	if !th.Allow(protocol.MessageWirePreview, "UserB", simStart+0.01) {
		return fail("UserB throttled by UserA's traffic")
	}
	if st := th.Stats("UserA", protocol.MessageWirePreview); st.Throttled != 1 {
		return fail("UserA throttled count %d, want 1", st.Throttled)
	}
	return nil
}

func checkIntervalSettings() error {
	th := throttle.New()
	if got := th.Interval(protocol.MessageWirePreview); math.Abs(got-0.1) > 1e-9 {
		return fail("default wire preview interval %.3f, want 0.1", got)
	}
	th.SetInterval(protocol.MessageWirePreview, 0.5)
	if got := th.Interval(protocol.MessageWirePreview); got != 0.5 {
		return fail("custom interval ignored: %.3f", got)
	}
	if !th.Allow(protocol.MessageWirePreview, "IntervalUser", simStart) {
		return fail("first preview throttled")
	}
	if th.Allow(protocol.MessageWirePreview, "IntervalUser", simStart+0.2) {
		return fail("preview allowed inside the custom interval")
	}
	if !th.Allow(protocol.MessageWirePreview, "IntervalUser", simStart+0.6) {
		return fail("preview throttled after the custom interval")
	}
	th.SetEnabled(protocol.MessageWirePreview, false)
	if th.ShouldThrottle(protocol.MessageWirePreview, "IntervalUser", simStart+0.61) {
		return fail("disabled throttling still throttles")
	}
	return nil
}

func newLockManager(clock *simClock) *locks.Manager {
	return locks.NewManager(logging.NewNop(),
		locks.WithClock(clock.now),
		locks.WithDurations(30*time.Second, 5*time.Second))
}

func checkBasicLocking() error {
	lm := newLockManager(&simClock{t: simStart})
	node := uuid.New()

	if !lm.RequestLock(node, "User1", 0) {
		return fail("lock on free node refused")
	}
	if lm.RequestLock(node, "User2", 0) {
		return fail("second user acquired a held lock")
	}
	if !lm.IsLocked(node) || lm.Owner(node) != "User1" {
		return fail("owner is %q, want User1", lm.Owner(node))
	}
	if !lm.CanUserModify(node, "User1") || lm.CanUserModify(node, "User2") {
		return fail("modify permissions wrong")
	}
	if lm.ReleaseLock(node, "User2") {
		return fail("non-owner released the lock")
	}
	if !lm.ReleaseLock(node, "User1") {
		return fail("owner could not release")
	}
	// User2's queued request is promoted on release.
	if lm.Owner(node) != "User2" {
		return fail("pending request not promoted, owner %q", lm.Owner(node))
	}
	lm.ReleaseLock(node, "User2")
	if lm.IsLocked(node) {
		return fail("node still locked after release")
	}
	return nil
}

func checkLockExpiry() error {
	clock := &simClock{t: simStart}
	lm := newLockManager(clock)
	node := uuid.New()

	if !lm.RequestLock(node, "User1", time.Second) {
		return fail("lock refused")
	}
	if lm.TimeRemaining(node) != time.Second {
		return fail("time remaining %s, want 1s", lm.TimeRemaining(node))
	}
	clock.advance(2 * time.Second)
	if lm.IsLocked(node) {
		return fail("expired lock still held")
	}
	if lm.State(node) != protocol.Unlocked {
		return fail("expired lock state %s", lm.State(node))
	}
	if !lm.RequestLock(node, "User2", 0) {
		return fail("expired lock not taken over")
	}
	if n := lm.Update(); n != 0 {
		return fail("update expired %d live locks", n)
	}
	return nil
}

func checkConflictingLocks() error {
	lm := newLockManager(&simClock{t: simStart})
	node := uuid.New()

	lm.RequestLock(node, "User1", 0)
	for _, user := range []string{"User2", "User3", "User2"} {
		if lm.RequestLock(node, user, 0) {
			return fail("%s acquired a held lock", user)
		}
	}
	if n := lm.PendingCount(node); n != 2 {
		return fail("pending %d, want 2 (duplicates are not queued twice)", n)
	}
	for _, next := range []string{"User2", "User3"} {
		lm.ReleaseLock(node, lm.Owner(node))
		if owner := lm.Owner(node); owner != next {
			return fail("owner %q after release, want %q", owner, next)
		}
	}
	lm.ReleaseLock(node, "User3")
	if lm.State(node) != protocol.Unlocked {
		return fail("queue not drained, state %s", lm.State(node))
	}
	return nil
}

func newMonitor(clock *simClock) *perf.Monitor {
	m := perf.NewMonitor(logging.NewNop(), nil)
	m.SetClock(clock.now)
	m.Start()
	return m
}

func checkThroughput() error {
	clock := &simClock{t: simStart}
	m := newMonitor(clock)
	for i := 0; i < 50; i++ {
		m.RecordSent(protocol.MessageNodeOperation, 128)
		m.RecordReceived(protocol.MessageWirePreview, 64, 0)
	}
	clock.advance(2 * time.Second)

	got := m.Metrics()
	if got.TotalMessagesSent != 50 || got.TotalMessagesReceived != 50 {
		return fail("counted %d sent, %d received", got.TotalMessagesSent, got.TotalMessagesReceived)
	}
	if math.Abs(got.MessagesPerSecond-50) > 0.01 {
		return fail("throughput %.2f msg/s, want 50", got.MessagesPerSecond)
	}
	return nil
}

func checkLatency() error {
	m := newMonitor(&simClock{t: simStart})
	for _, ms := range []float64{40, 50, 60} {
		m.RecordReceived(protocol.MessageWirePreview, 32, ms)
	}
	got := m.Metrics()
	if math.Abs(got.AverageLatencyMs-50) > 0.001 {
		return fail("average latency %.3f, want 50", got.AverageLatencyMs)
	}
	if got.PeakLatencyMs != 60 {
		return fail("peak latency %.3f, want 60", got.PeakLatencyMs)
	}
	if math.Abs(got.LatencyStandardDeviation-10) > 0.001 {
		return fail("latency std-dev %.3f, want 10", got.LatencyStandardDeviation)
	}
	m.RecordError("network", true)
	if got := m.Metrics(); got.NetworkErrors != 1 || got.TotalErrors != 1 {
		return fail("error not counted")
	}
	return nil
}

func checkMemoryTracking() error {
	m := newMonitor(&simClock{t: simStart})
	empty := m.Metrics().EstimatedMemoryUsageMB
	m.UpdateMemoryStats(100, 20, 5)
	got := m.Metrics()
	if got.MessageQueueSize != 100 || got.ActiveLockCount != 20 || got.CachedUserCount != 5 {
		return fail("memory inputs not tracked")
	}
	if got.EstimatedMemoryUsageMB <= empty {
		return fail("memory estimate did not grow")
	}
	return nil
}

func checkDetailedTimings() error {
	m := newMonitor(&simClock{t: simStart})
	m.AddTiming("serialize", 2)
	m.AddTiming("serialize", 4)
	m.AddTiming("relay", 1)
	timings := m.DetailedTimings()
	if timings["serialize"] != 3 || timings["relay"] != 1 {
		return fail("detailed timings %v", timings)
	}
	return nil
}
