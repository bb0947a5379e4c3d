package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/domain/throttle"
)

// stressStep is the simulated time between two stress messages.
const stressStep = time.Millisecond

// Stress summarizes a stress run.
type Stress struct {
	Messages          int     `json:"messages"`
	Users             int     `json:"users"`
	Sent              int     `json:"sent"`
	Throttled         int     `json:"throttled"`
	LocksGranted      int     `json:"locks_granted"`
	LockConflicts     int     `json:"lock_conflicts"`
	ActiveLocks       int     `json:"active_locks"`
	SimulatedSeconds  float64 `json:"simulated_seconds"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
}

var stressTypes = []protocol.MessageType{
	protocol.MessageWirePreview,
	protocol.MessageNodeOperation,
	protocol.MessageLockRequest,
	protocol.MessageLockRelease,
	protocol.MessageHeartbeat,
}

// StressTest pushes messages messages from users simulated users through a
// throttler, a lock manager and a performance monitor on a simulated clock.
// It fails if any message is unaccounted for or a lock invariant breaks.
func StressTest(ctx context.Context, messages, users int) (Stress, error) {
	out := Stress{Messages: messages, Users: users}
	if messages <= 0 || users <= 0 {
		return out, fmt.Errorf("stress test needs messages and users, got %d and %d", messages, users)
	}

	clock := &simClock{t: simStart}
	th := throttle.New()
	lm := newLockManager(clock)
	mon := newMonitor(clock)

	// Users contend for a small pool of nodes so lock conflicts occur.
	nodes := make([]uuid.UUID, max(users/2, 1))
	for i := range nodes {
		nodes[i] = uuid.New()
	}
	userIDs := make([]string, users)
	for i := range userIDs {
		userIDs[i] = fmt.Sprintf("StressUser%d", i)
	}

	for i := 0; i < messages; i++ {
		if i%256 == 0 && ctx.Err() != nil {
			return out, ctx.Err()
		}
		user := userIDs[i%users]
		t := stressTypes[(i/users)%len(stressTypes)]
		node := nodes[i%len(nodes)]
		now := clock.now()

		if !th.Allow(t, user, now) {
			out.Throttled++
			clock.advance(stressStep)
			continue
		}
		out.Sent++
		mon.RecordSent(t, 64)
		mon.RecordReceived(t, 64, float64(1+i%10))

		switch t {
		case protocol.MessageLockRequest:
			if lm.RequestLock(node, user, 0) {
				out.LocksGranted++
			} else {
				out.LockConflicts++
			}
		case protocol.MessageLockRelease:
			lm.ReleaseLock(node, user)
		case protocol.MessageNodeOperation:
			if !lm.CanUserModify(node, user) {
				out.LockConflicts++
			}
		}
		clock.advance(stressStep)
	}

	out.ActiveLocks = lm.Count()
	out.SimulatedSeconds = clock.now() - simStart
	metrics := mon.Metrics()
	out.MessagesPerSecond = float64(out.Sent) / out.SimulatedSeconds
	out.AverageLatencyMs = metrics.AverageLatencyMs

	if out.Sent+out.Throttled != messages {
		return out, fmt.Errorf("%d messages unaccounted for", messages-out.Sent-out.Throttled)
	}
	if out.Sent == 0 {
		return out, fmt.Errorf("no message got through the throttler")
	}
	if metrics.TotalMessagesSent != out.Sent {
		return out, fmt.Errorf("monitor counted %d sent, want %d", metrics.TotalMessagesSent, out.Sent)
	}
	if out.ActiveLocks > len(nodes) {
		return out, fmt.Errorf("%d active locks on %d nodes", out.ActiveLocks, len(nodes))
	}
	for _, node := range nodes {
		if lm.IsLocked(node) && lm.Owner(node) == "" {
			return out, fmt.Errorf("node %s locked without owner", node)
		}
	}
	return out, nil
}
