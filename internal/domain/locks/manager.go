package locks

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
)

const (
	DefaultLockDuration = 30 * time.Second
	DefaultExtension    = 5 * time.Second
)

// Change is a lock state transition delivered to subscribers.
type Change struct {
	NodeID uuid.UUID
	Lock   protocol.NodeLock
}

// Listener receives lock changes. It runs outside the manager's lock and may
// call back into the manager.
type Listener func(Change)

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock. Tests drive expiry with it.
func WithClock(clock protocol.Clock) Option {
	return func(m *Manager) { m.now = clock }
}

// WithDurations sets the default lock duration and the extension window.
func WithDurations(lock, extension time.Duration) Option {
	return func(m *Manager) {
		if lock > 0 {
			m.defaultDuration = lock.Seconds()
		}
		if extension > 0 {
			m.extension = extension.Seconds()
		}
	}
}

// Manager is the authoritative node lock table. Each node has at most one
// granted lock and a FIFO queue of pending requests.
type Manager struct {
	mu      sync.Mutex
	locks   map[uuid.UUID]protocol.NodeLock
	pending map[uuid.UUID][]protocol.NodeLock

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int

	defaultDuration float64
	extension       float64
	now             protocol.Clock
	log             *logging.Logger
}

// NewManager creates an empty lock manager.
func NewManager(log *logging.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	m := &Manager{
		locks:           make(map[uuid.UUID]protocol.NodeLock),
		pending:         make(map[uuid.UUID][]protocol.NodeLock),
		listeners:       make(map[int]Listener),
		defaultDuration: DefaultLockDuration.Seconds(),
		extension:       DefaultExtension.Seconds(),
		now:             protocol.Now,
		log:             log.Named("locks"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers l for every lock change and returns its cancel func.
func (m *Manager) Subscribe(l Listener) func() {
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

func (m *Manager) emit(changes []Change) {
	if len(changes) == 0 {
		return
	}
	m.listenersMu.RLock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenersMu.RUnlock()

	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}

// DefaultDuration is the lock duration used when callers pass zero.
func (m *Manager) DefaultDuration() time.Duration {
	return time.Duration(m.defaultDuration * float64(time.Second))
}

// RequestLock grants node to user, extends the user's existing lock, or
// queues the request behind the current holder. It reports whether the user
// holds the lock afterwards.
func (m *Manager) RequestLock(node uuid.UUID, user string, duration time.Duration) bool {
	if !protocol.ValidGUID(node) || user == "" {
		return false
	}
	d := duration.Seconds()
	if d <= 0 {
		d = m.defaultDuration
	}

	var changes []Change
	granted := m.withLock(func(now float64) bool {
		if existing, ok := m.locks[node]; ok {
			switch {
			case m.expired(existing, now):
				changes = append(changes, m.expireLocked(node))
			case existing.UserID == user:
				existing.ExpiryTime = now + d
				m.locks[node] = existing
				changes = append(changes, Change{NodeID: node, Lock: existing})
				return true
			default:
				m.enqueueLocked(protocol.NodeLock{
					NodeID:     node,
					State:      protocol.Pending,
					UserID:     user,
					LockTime:   now,
					ExpiryTime: now + d,
				})
				return false
			}
		}

		changes = append(changes, m.grantLocked(protocol.NodeLock{
			NodeID:     node,
			UserID:     user,
			LockTime:   now,
			ExpiryTime: now + d,
		}, now))
		return true
	})

	m.emit(changes)
	return granted
}

// ReleaseLock releases node if user holds it, then hands it to the oldest
// pending request.
func (m *Manager) ReleaseLock(node uuid.UUID, user string) bool {
	var changes []Change
	released := m.withLock(func(now float64) bool {
		var ok bool
		changes, ok = m.releaseLocked(node, user, now)
		return ok
	})
	m.emit(changes)
	return released
}

// Touch extends user's lock on node by the extension window when it is about
// to expire. Callers invoke it whenever the holder edits the node.
func (m *Manager) Touch(node uuid.UUID, user string) bool {
	var changes []Change
	extended := m.withLock(func(now float64) bool {
		lock, ok := m.locks[node]
		if !ok || lock.UserID != user || m.expired(lock, now) {
			return false
		}
		if lock.ExpiryTime-now >= m.extension {
			return false
		}
		lock.ExpiryTime = now + m.extension
		m.locks[node] = lock
		changes = append(changes, Change{NodeID: node, Lock: lock})
		return true
	})
	m.emit(changes)
	return extended
}

// IsLocked reports whether node has an unexpired lock.
func (m *Manager) IsLocked(node uuid.UUID) bool {
	return m.withLock(func(now float64) bool {
		lock, ok := m.locks[node]
		return ok && !m.expired(lock, now)
	})
}

// IsLockedByUser reports whether user holds an unexpired lock on node.
func (m *Manager) IsLockedByUser(node uuid.UUID, user string) bool {
	return m.withLock(func(now float64) bool {
		lock, ok := m.locks[node]
		return ok && lock.UserID == user && !m.expired(lock, now)
	})
}

// CanUserModify reports whether node is free or held by user.
func (m *Manager) CanUserModify(node uuid.UUID, user string) bool {
	return m.withLock(func(now float64) bool {
		lock, ok := m.locks[node]
		return !ok || m.expired(lock, now) || lock.UserID == user
	})
}

// State returns the lock state of node. A node without a lock but with
// queued requests is Pending.
func (m *Manager) State(node uuid.UUID) protocol.LockState {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[node]
	if !ok {
		if len(m.pending[node]) > 0 {
			return protocol.Pending
		}
		return protocol.Unlocked
	}
	if m.expired(lock, m.now()) {
		return protocol.Unlocked
	}
	return lock.State
}

// Owner returns the user holding node, or "" when it is free.
func (m *Manager) Owner(node uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[node]
	if !ok || m.expired(lock, m.now()) {
		return ""
	}
	return lock.UserID
}

// TimeRemaining returns how long node stays locked.
func (m *Manager) TimeRemaining(node uuid.UUID) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	lock, ok := m.locks[node]
	if !ok || m.expired(lock, now) {
		return 0
	}
	remaining := max(0, lock.ExpiryTime-now)
	return time.Duration(remaining * float64(time.Second))
}

// PendingCount returns how many requests are queued for node.
func (m *Manager) PendingCount(node uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending[node])
}

// HandleRemoteLockRequest applies a lock announced by a peer. A Locked
// request is granted when the node is free and queued when someone else
// holds it; an Unlocked request releases on behalf of its user.
func (m *Manager) HandleRemoteLockRequest(req protocol.NodeLock) {
	var changes []Change
	m.withLock(func(now float64) bool {
		switch req.State {
		case protocol.Locked:
			existing, ok := m.locks[req.NodeID]
			if !ok || m.expired(existing, now) {
				if ok {
					changes = append(changes, m.expireLocked(req.NodeID))
				}
				changes = append(changes, m.grantLocked(req, now))
				return true
			}
			if existing.UserID != req.UserID {
				req.State = protocol.Pending
				m.enqueueLocked(req)
			}
		case protocol.Unlocked:
			changes, _ = m.releaseLocked(req.NodeID, req.UserID, now)
		}
		return false
	})
	m.emit(changes)
}

// HandleRemoteLockRelease releases a lock on behalf of a peer.
func (m *Manager) HandleRemoteLockRelease(release protocol.NodeLock) {
	m.ReleaseLock(release.NodeID, release.UserID)
}

// Update expires every lapsed lock and hands each freed node to its next
// pending request. It returns the number of expired locks.
func (m *Manager) Update() int {
	var changes []Change
	var expired int
	m.withLock(func(now float64) bool {
		var nodes []uuid.UUID
		for node, lock := range m.locks {
			if m.expired(lock, now) {
				nodes = append(nodes, node)
			}
		}
		for _, node := range nodes {
			changes = append(changes, m.expireLocked(node))
			if c, ok := m.promoteLocked(node, now); ok {
				changes = append(changes, c)
			}
		}
		expired = len(nodes)
		return true
	})
	m.emit(changes)
	return expired
}

// ClearAll drops every lock and pending request.
func (m *Manager) ClearAll() int {
	var changes []Change
	m.withLock(func(float64) bool {
		for node, lock := range m.locks {
			lock.State = protocol.Unlocked
			changes = append(changes, Change{NodeID: node, Lock: lock})
		}
		m.locks = make(map[uuid.UUID]protocol.NodeLock)
		m.pending = make(map[uuid.UUID][]protocol.NodeLock)
		return true
	})
	m.emit(changes)
	m.log.Info("cleared all locks", zap.Int("count", len(changes)))
	return len(changes)
}

// ClearUser releases every lock user holds, promoting pending requests, and
// drops the user's own pending requests.
func (m *Manager) ClearUser(user string) int {
	var changes []Change
	var released int
	m.withLock(func(now float64) bool {
		for node, queue := range m.pending {
			kept := queue[:0]
			for _, req := range queue {
				if req.UserID != user {
					kept = append(kept, req)
				}
			}
			if len(kept) == 0 {
				delete(m.pending, node)
			} else {
				m.pending[node] = kept
			}
		}

		var nodes []uuid.UUID
		for node, lock := range m.locks {
			if lock.UserID == user {
				nodes = append(nodes, node)
			}
		}
		for _, node := range nodes {
			c, _ := m.releaseLocked(node, user, now)
			changes = append(changes, c...)
		}
		released = len(nodes)
		return true
	})
	m.emit(changes)
	return released
}

// Snapshot returns every unexpired lock ordered by lock time.
func (m *Manager) Snapshot() []protocol.NodeLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]protocol.NodeLock, 0, len(m.locks))
	for _, lock := range m.locks {
		if !m.expired(lock, now) {
			out = append(out, lock)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LockTime == out[j].LockTime {
			return out[i].NodeID.String() < out[j].NodeID.String()
		}
		return out[i].LockTime < out[j].LockTime
	})
	return out
}

// Count returns the number of unexpired locks.
func (m *Manager) Count() int {
	return len(m.Snapshot())
}

func (m *Manager) withLock(fn func(now float64) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.now())
}

func (m *Manager) expired(lock protocol.NodeLock, now float64) bool {
	return now > lock.ExpiryTime
}

func (m *Manager) enqueueLocked(req protocol.NodeLock) {
	for _, queued := range m.pending[req.NodeID] {
		if queued.UserID == req.UserID {
			return
		}
	}
	m.pending[req.NodeID] = append(m.pending[req.NodeID], req)
	m.log.Debug("lock request queued",
		logging.Node(req.NodeID.String()),
		logging.User(req.UserID),
		zap.Int("position", len(m.pending[req.NodeID])))
}

func (m *Manager) grantLocked(lock protocol.NodeLock, now float64) Change {
	if lock.LockTime <= 0 {
		lock.LockTime = now
	}
	if lock.ExpiryTime <= lock.LockTime {
		lock.ExpiryTime = lock.LockTime + m.defaultDuration
	}
	lock.State = protocol.Locked
	m.locks[lock.NodeID] = lock
	m.log.Debug("lock granted", logging.Node(lock.NodeID.String()), logging.User(lock.UserID))
	return Change{NodeID: lock.NodeID, Lock: lock}
}

func (m *Manager) expireLocked(node uuid.UUID) Change {
	lock := m.locks[node]
	delete(m.locks, node)
	lock.State = protocol.Unlocked
	m.log.Info("lock expired", logging.Node(node.String()), logging.User(lock.UserID))
	return Change{NodeID: node, Lock: lock}
}

func (m *Manager) releaseLocked(node uuid.UUID, user string, now float64) ([]Change, bool) {
	lock, ok := m.locks[node]
	if !ok || lock.UserID != user {
		return nil, false
	}
	delete(m.locks, node)
	lock.State = protocol.Unlocked

	changes := []Change{{NodeID: node, Lock: lock}}
	if c, ok := m.promoteLocked(node, now); ok {
		changes = append(changes, c)
	}
	return changes, true
}

// promoteLocked grants node to the head of its queue. The queued request
// keeps its requested duration, counted from now.
func (m *Manager) promoteLocked(node uuid.UUID, now float64) (Change, bool) {
	queue := m.pending[node]
	if len(queue) == 0 {
		return Change{}, false
	}
	next := queue[0]
	if len(queue) == 1 {
		delete(m.pending, node)
	} else {
		m.pending[node] = queue[1:]
	}

	duration := next.ExpiryTime - next.LockTime
	if duration <= 0 {
		duration = m.defaultDuration
	}
	next.LockTime = now
	next.ExpiryTime = now + duration
	return m.grantLocked(next, now), true
}
