package notify

import (
	"html"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
	"github.com/deepdev237/LivePrint/internal/shared/id"
)

const (
	DefaultDuration = 3.0
	MinDuration     = 0.5
	ErrorDuration   = 5.0

	sweepInterval = time.Second
)

// Listener receives every notification that is shown.
type Listener func(Notification)

// Center keeps the active notifications and fans them out to listeners.
// Expired notifications are swept once a second while any are active.
type Center struct {
	mu              sync.Mutex
	enabled         bool
	defaultDuration float64
	active          []Notification
	sweeping        bool
	stop            chan struct{}

	listenersMu sync.RWMutex
	listeners   []Listener

	policy *bluemonday.Policy
	now    protocol.Clock
	log    *logging.Logger
}

// NewCenter creates an enabled notification center.
func NewCenter(log *logging.Logger) *Center {
	if log == nil {
		log = logging.NewNop()
	}
	return &Center{
		enabled:         true,
		defaultDuration: DefaultDuration,
		stop:            make(chan struct{}),
		policy:          bluemonday.StrictPolicy(),
		now:             protocol.Now,
		log:             log.Named("notify"),
	}
}

// SetClock replaces the clock used for timestamps and expiry.
func (c *Center) SetClock(clock protocol.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = clock
}

// Subscribe registers l for every shown notification.
func (c *Center) Subscribe(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Show records n as active and delivers it. It is a no-op while disabled.
func (c *Center) Show(n Notification) {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	if n.ID == "" {
		n.ID = id.NewNotificationID()
	}
	c.active = append(c.active, n)
	if !c.sweeping {
		c.sweeping = true
		go c.sweep()
	}
	c.mu.Unlock()

	c.log.Info("notification", zap.String("type", n.Type.String()), zap.String("message", n.Message))

	c.listenersMu.RLock()
	listeners := c.listeners
	c.listenersMu.RUnlock()
	for _, l := range listeners {
		l(n)
	}
}

// Create builds a notification of type t. A non-empty message replaces the
// type's template. Display names and messages are stripped of markup.
func (c *Center) Create(t Type, userID, displayName, message string, node uuid.UUID) Notification {
	c.mu.Lock()
	now := c.now()
	duration := c.defaultDuration
	c.mu.Unlock()

	displayName = c.plain(displayName)
	if message == "" {
		message = Format(TemplateFor(t), c.plain(userID), displayName, node)
	} else {
		message = c.plain(message)
	}

	return Notification{
		ID:              id.NewNotificationID(),
		Type:            t,
		UserID:          userID,
		UserDisplayName: displayName,
		Message:         message,
		NodeID:          node,
		Timestamp:       now,
		Duration:        duration,
		Color:           ColorFor(t),
	}
}

// plain strips markup from s. Notices are shown as text, so the entities
// the policy escapes are decoded again.
func (c *Center) plain(s string) string {
	return html.UnescapeString(c.policy.Sanitize(s))
}

// UserJoined announces a participant joining.
func (c *Center) UserJoined(userID, displayName string) {
	c.Show(c.Create(UserJoined, userID, displayName, "", uuid.Nil))
}

// UserLeft announces a participant leaving.
func (c *Center) UserLeft(userID, displayName string) {
	c.Show(c.Create(UserLeft, userID, displayName, "", uuid.Nil))
}

// NodeLocked announces a lock being taken.
func (c *Center) NodeLocked(userID, displayName string, node uuid.UUID) {
	c.Show(c.Create(NodeLocked, userID, displayName, "", node))
}

// NodeEvent announces a node-level change of type t.
func (c *Center) NodeEvent(t Type, userID, displayName string, node uuid.UUID) {
	c.Show(c.Create(t, userID, displayName, "", node))
}

// ConflictResolved announces how a conflict was settled.
func (c *Center) ConflictResolved(conflict, resolution string) {
	c.Show(c.Create(ConflictResolved, "", "", "Conflict resolved: "+conflict+" - "+resolution, uuid.Nil))
}

// Error announces a sync or network error. Errors stay up longer.
func (c *Center) Error(message string, network bool) {
	t := SyncError
	if network {
		t = NetworkError
	}
	n := c.Create(t, "", "", message, uuid.Nil)
	n.Duration = ErrorDuration
	c.Show(n)
}

// Active returns a copy of the active notifications, oldest first.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.active...)
}

// ActiveCount returns the number of active notifications.
func (c *Center) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// ClearAll drops every active notification.
func (c *Center) ClearAll() {
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
	c.log.Info("all notifications cleared")
}

// SetEnabled turns notifications on or off. Disabling clears them.
func (c *Center) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
	if !enabled {
		c.ClearAll()
	}
	c.log.Info("notifications toggled", zap.Bool("enabled", enabled))
}

// Enabled reports whether notifications are shown.
func (c *Center) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetDefaultDuration sets the display time of new notifications, at least
// MinDuration seconds.
func (c *Center) SetDefaultDuration(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultDuration = max(MinDuration, seconds)
}

// DefaultDuration returns the display time of new notifications.
func (c *Center) DefaultDuration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultDuration
}

// Cleanup drops notifications that expired at now and returns how many
// remain.
func (c *Center) Cleanup(now float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupLocked(now)
}

func (c *Center) cleanupLocked(now float64) int {
	kept := c.active[:0]
	for _, n := range c.active {
		if !n.Expired(now) {
			kept = append(kept, n)
		}
	}
	removed := len(c.active) - len(kept)
	clear(c.active[len(kept):])
	c.active = kept
	if removed > 0 {
		c.log.Debug("expired notifications removed", zap.Int("count", removed))
	}
	return len(kept)
}

// Close stops the sweeper.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

func (c *Center) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			remaining := c.cleanupLocked(c.now())
			if remaining == 0 {
				c.sweeping = false
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}
