package session

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/shared/id"
)

// Participant is one connected editor. The transport drains Outbound and
// writes each envelope to the connection.
type Participant struct {
	ID          id.ParticipantID
	UserID      string
	DisplayName string
	JoinedAt    float64

	lastSeen atomic.Uint64 // float64 bits
	dropped  atomic.Int64

	mu     sync.Mutex
	out    chan protocol.Envelope
	closed bool
	done   chan struct{}
}

func newParticipant(userID, displayName string, queueSize int, now float64) *Participant {
	p := &Participant{
		ID:          id.NewParticipantID(),
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    now,
		out:         make(chan protocol.Envelope, queueSize),
		done:        make(chan struct{}),
	}
	p.touch(now)
	return p
}

// Outbound delivers the envelopes queued for this participant. It is
// closed when the participant leaves.
func (p *Participant) Outbound() <-chan protocol.Envelope {
	return p.out
}

// Done is closed when the participant leaves.
func (p *Participant) Done() <-chan struct{} {
	return p.done
}

// QueueDepth is the number of envelopes waiting to be written.
func (p *Participant) QueueDepth() int {
	return len(p.out)
}

// Dropped is the number of envelopes lost to a full queue.
func (p *Participant) Dropped() int64 {
	return p.dropped.Load()
}

// LastSeen is the time of the last message received from the participant.
func (p *Participant) LastSeen() float64 {
	return math.Float64frombits(p.lastSeen.Load())
}

func (p *Participant) touch(now float64) {
	p.lastSeen.Store(math.Float64bits(now))
}

// enqueue queues env without blocking. It reports false when the queue is
// full or the participant has left.
func (p *Participant) enqueue(env protocol.Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.out <- env:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

func (p *Participant) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.out)
	close(p.done)
}

// UserInfo describes a connected participant.
type UserInfo struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	JoinedAt    float64 `json:"joined_at"`
	LastSeen    float64 `json:"last_seen"`
	QueueDepth  int     `json:"queue_depth"`
	Dropped     int64   `json:"dropped"`
}

func (p *Participant) info() UserInfo {
	return UserInfo{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		JoinedAt:    p.JoinedAt,
		LastSeen:    p.LastSeen(),
		QueueDepth:  p.QueueDepth(),
		Dropped:     p.Dropped(),
	}
}
