package throttle

import (
	"sync"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
)

const (
	// MaxRecordAge is how long a sent record stays relevant, in seconds.
	MaxRecordAge = 30.0
	// MaxRecordCount triggers cleanup of records older than MaxRecordAge.
	MaxRecordCount = 1000
)

// Stats counts decisions for one user and message type.
type Stats struct {
	Sent      int     `json:"sent"`
	Throttled int     `json:"throttled"`
	Last      float64 `json:"last"`
}

type record struct {
	user string
	typ  protocol.MessageType
	at   float64
}

type key struct {
	user string
	typ  protocol.MessageType
}

// Throttler rate-limits high-frequency messages per user and message type.
// Structural messages are never throttled by default.
type Throttler struct {
	mu       sync.Mutex
	enabled  map[protocol.MessageType]bool
	custom   map[protocol.MessageType]float64
	history  []record
	lastSent map[key]float64
	stats    map[key]*Stats
}

// New creates a throttler with WirePreview and Heartbeat throttling on.
func New() *Throttler {
	return &Throttler{
		enabled: map[protocol.MessageType]bool{
			protocol.MessageWirePreview:   true,
			protocol.MessageNodeOperation: false,
			protocol.MessageLockRequest:   false,
			protocol.MessageLockRelease:   false,
			protocol.MessageHeartbeat:     true,
		},
		custom:   make(map[protocol.MessageType]float64),
		lastSent: make(map[key]float64),
		stats:    make(map[key]*Stats),
	}
}

// DefaultInterval returns the built-in minimum spacing for t in seconds.
func DefaultInterval(t protocol.MessageType) float64 {
	switch t {
	case protocol.MessageWirePreview:
		return 0.1
	case protocol.MessageHeartbeat:
		return 1.0
	default:
		return 0
	}
}

// Interval returns the effective interval for t, preferring a custom value.
func (th *Throttler) Interval(t protocol.MessageType) float64 {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.intervalLocked(t)
}

func (th *Throttler) intervalLocked(t protocol.MessageType) float64 {
	if v, ok := th.custom[t]; ok {
		return v
	}
	return DefaultInterval(t)
}

// SetInterval overrides the interval for t. A negative value restores the
// default.
func (th *Throttler) SetInterval(t protocol.MessageType, seconds float64) {
	th.mu.Lock()
	defer th.mu.Unlock()
	if seconds < 0 {
		delete(th.custom, t)
		return
	}
	th.custom[t] = seconds
}

// SetEnabled turns throttling for t on or off.
func (th *Throttler) SetEnabled(t protocol.MessageType, enabled bool) {
	th.mu.Lock()
	defer th.mu.Unlock()
	th.enabled[t] = enabled
}

// Enabled reports whether throttling is on for t.
func (th *Throttler) Enabled(t protocol.MessageType) bool {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.enabled[t]
}

// ShouldThrottle reports whether a message of type t from user at now
// arrives too soon after the last one that was sent. Only throttled
// decisions are counted; RecordSent counts the sent ones.
func (th *Throttler) ShouldThrottle(t protocol.MessageType, user string, now float64) bool {
	th.mu.Lock()
	defer th.mu.Unlock()

	if !th.enabled[t] {
		return false
	}
	interval := th.intervalLocked(t)
	if interval <= 0 {
		return false
	}

	k := key{user: user, typ: t}
	if now-th.lastSent[k] >= interval {
		return false
	}
	th.countLocked(k, true, now)
	return true
}

// RecordSent notes that a message went out.
func (th *Throttler) RecordSent(t protocol.MessageType, user string, now float64) {
	th.mu.Lock()
	defer th.mu.Unlock()

	k := key{user: user, typ: t}
	th.history = append(th.history, record{user: user, typ: t, at: now})
	th.lastSent[k] = now
	th.countLocked(k, false, now)

	if len(th.history) > MaxRecordCount {
		th.cleanupLocked(now)
	}
}

// Allow combines ShouldThrottle and RecordSent: it reports whether the
// message may go out and records it when it does.
func (th *Throttler) Allow(t protocol.MessageType, user string, now float64) bool {
	if th.ShouldThrottle(t, user, now) {
		return false
	}
	th.RecordSent(t, user, now)
	return true
}

// Cleanup drops records older than MaxRecordAge.
func (th *Throttler) Cleanup(now float64) {
	th.mu.Lock()
	defer th.mu.Unlock()
	th.cleanupLocked(now)
}

func (th *Throttler) cleanupLocked(now float64) {
	kept := th.history[:0]
	for _, r := range th.history {
		if now-r.at <= MaxRecordAge {
			kept = append(kept, r)
		}
	}
	clear(th.history[len(kept):])
	th.history = kept

	for k, at := range th.lastSent {
		if now-at > MaxRecordAge {
			delete(th.lastSent, k)
		}
	}
}

// HistoryLen returns the number of retained records.
func (th *Throttler) HistoryLen() int {
	th.mu.Lock()
	defer th.mu.Unlock()
	return len(th.history)
}

func (th *Throttler) countLocked(k key, throttled bool, now float64) {
	s, ok := th.stats[k]
	if !ok {
		s = &Stats{}
		th.stats[k] = s
	}
	if throttled {
		s.Throttled++
		return
	}
	s.Sent++
	s.Last = now
}

// Stats returns the counters for user and t.
func (th *Throttler) Stats(user string, t protocol.MessageType) Stats {
	th.mu.Lock()
	defer th.mu.Unlock()
	if s, ok := th.stats[key{user: user, typ: t}]; ok {
		return *s
	}
	return Stats{}
}

// Totals sums the counters of every user per message type.
func (th *Throttler) Totals() map[protocol.MessageType]Stats {
	th.mu.Lock()
	defer th.mu.Unlock()

	out := make(map[protocol.MessageType]Stats)
	for k, s := range th.stats {
		total := out[k.typ]
		total.Sent += s.Sent
		total.Throttled += s.Throttled
		total.Last = max(total.Last, s.Last)
		out[k.typ] = total
	}
	return out
}

// ResetStats clears every counter. Send history is kept.
func (th *Throttler) ResetStats() {
	th.mu.Lock()
	defer th.mu.Unlock()
	th.stats = make(map[key]*Stats)
}

// Setting is the throttling configuration of one message type.
type Setting struct {
	Type     string  `json:"type"`
	Enabled  bool    `json:"enabled"`
	Interval float64 `json:"interval"`
}

// Settings lists the configuration of every message type.
func (th *Throttler) Settings() []Setting {
	th.mu.Lock()
	defer th.mu.Unlock()

	types := protocol.MessageTypes()
	out := make([]Setting, 0, len(types))
	for _, t := range types {
		out = append(out, Setting{Type: t.String(), Enabled: th.enabled[t], Interval: th.intervalLocked(t)})
	}
	return out
}
