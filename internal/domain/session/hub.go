package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/domain/journal"
	"github.com/deepdev237/LivePrint/internal/domain/locks"
	"github.com/deepdev237/LivePrint/internal/domain/notify"
	"github.com/deepdev237/LivePrint/internal/domain/perf"
	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/domain/throttle"
	"github.com/deepdev237/LivePrint/internal/infrastructure/config"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
	"github.com/deepdev237/LivePrint/internal/infrastructure/monitoring"
	"github.com/deepdev237/LivePrint/internal/shared/id"
)

// MaxSimulatedLatency bounds SetSimulatedLatency.
const MaxSimulatedLatency = 5 * time.Second

const sweepInterval = time.Second

// HubUserID signs messages the hub originates itself.
const HubUserID = "LiveBP"

var (
	ErrSessionFull           = errors.New("session is full")
	ErrUnknownParticipant    = errors.New("unknown participant")
	ErrCollaborationDisabled = errors.New("collaboration is disabled")
	ErrUserMismatch          = errors.New("message user does not match sender")
	ErrThrottled             = errors.New("message throttled")
	ErrDuplicatePreview      = errors.New("duplicate wire preview")
	ErrPreviewsDisabled      = errors.New("wire previews are disabled")
	ErrLockingDisabled       = errors.New("node locking is disabled")
	ErrNodeLocked            = errors.New("node is locked by another user")
	ErrFiltered              = errors.New("blueprint is outside the configured filters")
	ErrInvalidLatency        = errors.New("simulated latency must be between 0 and 5000 ms")
)

// Silent reports whether err is a routine drop the sender need not be told
// about.
func Silent(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrDuplicatePreview)
}

// Options configures a Hub.
type Options struct {
	Settings         config.Settings
	BlueprintFilters []string
	SimulatedLatency time.Duration

	// Journal records relayed messages. A memory-only journal sized by
	// Settings.MaxHistoryEntries is used when nil.
	Journal *journal.Journal
	// Metrics is optional.
	Metrics *monitoring.Metrics
	Logger  *logging.Logger
	Clock   protocol.Clock
}

// Hub is one collaboration session. It owns the lock table, throttles and
// validates inbound messages, relays them to the other participants and
// keeps the session's notifications, performance figures and journal.
type Hub struct {
	mu           sync.RWMutex
	sessionID    id.SessionID
	participants map[string]*Participant
	blueprints   map[uuid.UUID]*trackedBlueprint
	lockTargets  map[uuid.UUID]protocol.Target
	lastPreviews map[uint64]relayedPreview
	settings     config.Settings
	filters      []string
	enabled      bool
	debug        bool
	latency      time.Duration
	relayed      int64
	dropped      map[string]int64

	locks    *locks.Manager
	throttle *throttle.Throttler
	notes    *notify.Center
	perf     *perf.Monitor
	journal  *journal.Journal
	metrics  *monitoring.Metrics

	now protocol.Clock
	log *logging.Logger
}

// New creates a hub. Invalid blueprint filter patterns are an error.
func New(opts Options) (*Hub, error) {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	log = log.Named("session")

	clock := opts.Clock
	if clock == nil {
		clock = protocol.Now
	}

	settings := opts.Settings
	settings.Clamp()

	for _, pattern := range opts.BlueprintFilters {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid blueprint filter %q", pattern)
		}
	}
	if opts.SimulatedLatency < 0 || opts.SimulatedLatency > MaxSimulatedLatency {
		return nil, ErrInvalidLatency
	}

	h := &Hub{
		sessionID:    id.NewSessionID(),
		participants: make(map[string]*Participant),
		blueprints:   make(map[uuid.UUID]*trackedBlueprint),
		lockTargets:  make(map[uuid.UUID]protocol.Target),
		lastPreviews: make(map[uint64]relayedPreview),
		settings:     settings,
		filters:      append([]string(nil), opts.BlueprintFilters...),
		enabled:      settings.EnableLiveCollaboration,
		debug:        settings.EnableVerboseLogging,
		latency:      opts.SimulatedLatency,
		dropped:      make(map[string]int64),
		metrics:      opts.Metrics,
		now:          clock,
		log:          log,
	}

	h.locks = locks.NewManager(log,
		locks.WithClock(clock),
		locks.WithDurations(settings.LockDuration(), settings.LockExtension()))
	h.locks.Subscribe(h.broadcastLock)

	h.throttle = throttle.New()
	h.throttle.SetInterval(protocol.MessageWirePreview, settings.WirePreviewInterval().Seconds())
	h.applyThrottleSetting(settings.ThrottleMessages)

	h.notes = notify.NewCenter(log)
	h.notes.SetClock(clock)
	h.notes.SetDefaultDuration(settings.NotificationDuration)
	h.notes.SetEnabled(settings.ShowActivityNotifications)
	h.notes.Subscribe(h.broadcastNotification)

	var sink perf.Sink
	if opts.Metrics != nil {
		sink = opts.Metrics
	}
	h.perf = perf.NewMonitor(log, sink)
	h.perf.SetClock(clock)
	h.perf.Start()
	h.perf.UpdateSessionInfo(0, h.enabled)

	h.journal = opts.Journal
	if h.journal == nil {
		h.journal = journal.New(settings.MaxHistoryEntries, nil, log)
	}

	if h.debug {
		log.SetVerbose(true)
	}

	log.Info("collaboration session created",
		zap.String("session", h.sessionID.String()),
		zap.Int("max_users", settings.MaxConcurrentUsers),
		zap.Strings("blueprint_filters", h.filters))
	return h, nil
}

// relayedPreview is the last wire preview relayed for one node pin and user.
type relayedPreview struct {
	preview protocol.WirePreview
	at      float64
}

func (h *Hub) applyThrottleSetting(on bool) {
	for _, t := range []protocol.MessageType{protocol.MessageWirePreview, protocol.MessageHeartbeat} {
		h.throttle.SetEnabled(t, on)
	}
}

// Run sweeps expired locks, stale throttle records and old journal entries
// until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	h.mu.RLock()
	cleanupEvery := h.settings.CleanupInterval()
	h.mu.RUnlock()
	lastCleanup := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
			if time.Since(lastCleanup) >= cleanupEvery {
				lastCleanup = time.Now()
				if _, err := h.journal.Cleanup(ctx, cleanupEvery.Seconds()); err != nil {
					h.log.Warn("journal cleanup failed", zap.Error(err))
				}
			}
		}
	}
}

// Sweep runs one maintenance pass.
func (h *Hub) Sweep() {
	h.mu.RLock()
	autoExpire := h.settings.AutoCleanupExpiredLocks
	h.mu.RUnlock()

	if autoExpire {
		if n := h.locks.Update(); n > 0 {
			h.log.Debug("expired locks swept", zap.Int("count", n))
		}
	}
	now := h.now()
	h.throttle.Cleanup(now)
	h.prunePreviews(func(r relayedPreview) bool {
		return now-r.at > throttle.MaxRecordAge
	})
	h.updateGauges()
}

// prunePreviews forgets the relayed previews drop reports true for.
func (h *Hub) prunePreviews(drop func(relayedPreview) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, r := range h.lastPreviews {
		if drop(r) {
			delete(h.lastPreviews, key)
		}
	}
}

// PreviewCount returns how many relayed previews are remembered for
// duplicate detection.
func (h *Hub) PreviewCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.lastPreviews)
}

func (h *Hub) updateGauges() {
	h.mu.RLock()
	users := len(h.participants)
	queue := 0
	for _, p := range h.participants {
		queue += p.QueueDepth()
	}
	enabled := h.enabled
	h.mu.RUnlock()

	h.perf.UpdateSessionInfo(users, enabled)
	h.perf.UpdateMemoryStats(queue, h.locks.Count(), users)
}

// Join admits a participant named name. An empty name gets a generated
// User_<uuid> name; a taken one gets a numeric suffix. The joiner's first
// envelope is its welcome.
func (h *Hub) Join(name string) (*Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "User_" + uuid.NewString()
	}

	h.mu.Lock()
	if len(h.participants) >= h.settings.MaxConcurrentUsers {
		h.mu.Unlock()
		h.log.Warn("join rejected, session full", logging.User(name))
		return nil, ErrSessionFull
	}
	userID := name
	for n := 2; h.participants[userID] != nil; n++ {
		userID = fmt.Sprintf("%s_%d", name, n)
	}
	p := newParticipant(userID, name, h.settings.MaxMessageQueueSize, h.now())
	h.participants[userID] = p
	users := h.usersLocked()
	// Relays and broadcasts read participants under h.mu, so queueing the
	// welcome before unlocking keeps it first.
	p.enqueue(protocol.Envelope{
		Kind: protocol.KindWelcome,
		Welcome: &protocol.Welcome{
			UserID:         userID,
			SessionID:      h.sessionID.String(),
			Users:          users,
			Locks:          h.locks.Snapshot(),
			BinaryPreviews: h.settings.UseBinarySerializationForPreviews,
		},
	})
	h.mu.Unlock()

	h.broadcast(protocol.Envelope{
		Kind:     protocol.KindPresence,
		Presence: &protocol.Presence{Users: users, Joined: userID},
	}, userID)

	h.log.Info("participant joined", logging.User(userID), zap.Int("users", len(users)))
	h.notes.UserJoined(userID, name)
	if h.metrics != nil {
		h.metrics.SetParticipants(len(users))
	}
	h.updateGauges()
	return p, nil
}

// Leave removes a participant, releasing its locks and pending requests.
func (h *Hub) Leave(userID string) error {
	h.mu.Lock()
	p, ok := h.participants[userID]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownParticipant
	}
	delete(h.participants, userID)
	for bp, tracked := range h.blueprints {
		delete(tracked.users, userID)
		if len(tracked.users) == 0 {
			delete(h.blueprints, bp)
		}
	}
	users := h.usersLocked()
	for key, r := range h.lastPreviews {
		if r.preview.UserID == userID {
			delete(h.lastPreviews, key)
		}
	}
	h.mu.Unlock()

	p.close()
	released := h.locks.ClearUser(userID)

	h.broadcast(protocol.Envelope{
		Kind:     protocol.KindPresence,
		Presence: &protocol.Presence{Users: users, Left: userID},
	}, "")

	h.log.Info("participant left", logging.User(userID), zap.Int("locks_released", released))
	h.notes.UserLeft(userID, p.DisplayName)
	if h.metrics != nil {
		h.metrics.SetParticipants(len(users))
	}
	h.updateGauges()
	return nil
}

func (h *Hub) usersLocked() []string {
	users := make([]string, 0, len(h.participants))
	for userID := range h.participants {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// broadcast queues env for every participant except the one named except.
func (h *Hub) broadcast(env protocol.Envelope, except string) {
	h.mu.RLock()
	recipients := make([]*Participant, 0, len(h.participants))
	for userID, p := range h.participants {
		if userID != except {
			recipients = append(recipients, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range recipients {
		h.deliver(p, env)
	}
}

// deliver queues env for p, recording an overflow as a network error.
func (h *Hub) deliver(p *Participant, env protocol.Envelope) {
	if p.enqueue(env) {
		return
	}
	h.perf.RecordError("queue_overflow", true)
	h.countDrop("queue_full")
	h.log.Warn("outbound queue full, message dropped",
		logging.User(p.UserID), zap.String("kind", string(env.Kind)))
}

func (h *Hub) countDrop(reason string) {
	h.mu.Lock()
	h.dropped[reason]++
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.RecordDropped(reason)
	}
}

// send queues env for a single participant.
func (h *Hub) send(userID string, env protocol.Envelope) {
	h.mu.RLock()
	p, ok := h.participants[userID]
	h.mu.RUnlock()
	if ok {
		h.deliver(p, env)
	}
}

// SendError queues an error envelope for one participant.
func (h *Hub) SendError(userID, message string) {
	h.send(userID, protocol.ErrorEnvelope(message))
}

func (h *Hub) broadcastLock(c locks.Change) {
	h.mu.Lock()
	target := h.lockTargets[c.NodeID]
	h.mu.Unlock()

	t := protocol.MessageLockRequest
	if c.Lock.State == protocol.Unlocked {
		t = protocol.MessageLockRelease
	}
	msg, err := protocol.NewLockMessage(t, target, c.Lock)
	if err != nil {
		h.log.Error("encode lock change failed", zap.Error(err))
		return
	}
	if msg.UserID == "" {
		msg.UserID = HubUserID
	}

	if c.Lock.State == protocol.Unlocked && h.locks.State(c.NodeID) == protocol.Unlocked {
		h.mu.Lock()
		delete(h.lockTargets, c.NodeID)
		h.mu.Unlock()
	}

	h.broadcast(protocol.MessageEnvelope(msg), "")
	if h.metrics != nil {
		h.metrics.RecordLockChange(c.Lock.State.String())
		h.metrics.SetLocksActive(h.locks.Count())
	}
}

// broadcastNotification fans a notification out to everyone but the user
// it is about.
func (h *Hub) broadcastNotification(n notify.Notification) {
	notice := n.Notice()
	h.broadcast(protocol.Envelope{Kind: protocol.KindNotification, Notification: &notice}, n.UserID)
	if h.metrics != nil {
		h.metrics.RecordNotification(n.Type.String())
	}
}

// SessionID identifies this session.
func (h *Hub) SessionID() id.SessionID {
	return h.sessionID
}

// Participant returns the participant with userID.
func (h *Hub) Participant(userID string) (*Participant, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.participants[userID]
	return p, ok
}

// ConnectedUsers lists the participants ordered by user id.
func (h *Hub) ConnectedUsers() []UserInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]UserInfo, 0, len(h.participants))
	for _, userID := range h.usersLocked() {
		out = append(out, h.participants[userID].info())
	}
	return out
}

// Enabled reports whether messages are being relayed.
func (h *Hub) Enabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enabled
}

// SetEnabled turns relaying on or off. Disabling clears every lock.
func (h *Hub) SetEnabled(enabled bool) {
	h.mu.Lock()
	changed := h.enabled != enabled
	h.enabled = enabled
	h.mu.Unlock()
	if !changed {
		return
	}

	if !enabled {
		h.locks.ClearAll()
	}
	h.log.Info("collaboration toggled", zap.Bool("enabled", enabled))
	h.updateGauges()
}

// Toggle flips collaboration and returns the new state.
func (h *Hub) Toggle() bool {
	enabled := !h.Enabled()
	h.SetEnabled(enabled)
	return enabled
}

// Debug reports whether debug mode is on.
func (h *Hub) Debug() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.debug
}

// SetDebug switches verbose logging and per-message logging together.
func (h *Hub) SetDebug(debug bool) {
	h.mu.Lock()
	h.debug = debug
	h.settings.LogAllMessages = debug
	h.mu.Unlock()
	h.log.SetVerbose(debug)
	h.log.Info("debug mode", zap.Bool("enabled", debug))
}

// SimulatedLatency is the delay added before relaying.
func (h *Hub) SimulatedLatency() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latency
}

// SetSimulatedLatency delays every relay by d, at most MaxSimulatedLatency.
func (h *Hub) SetSimulatedLatency(d time.Duration) error {
	if d < 0 || d > MaxSimulatedLatency {
		return ErrInvalidLatency
	}
	h.mu.Lock()
	h.latency = d
	h.mu.Unlock()
	h.log.Info("simulated latency set", zap.Duration("latency", d))
	return nil
}

// Settings returns the effective collaboration settings.
func (h *Hub) Settings() config.Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

// Locks exposes the lock table.
func (h *Hub) Locks() *locks.Manager { return h.locks }

// Throttler exposes the message throttler.
func (h *Hub) Throttler() *throttle.Throttler { return h.throttle }

// Notifications exposes the notification center.
func (h *Hub) Notifications() *notify.Center { return h.notes }

// Perf exposes the performance monitor.
func (h *Hub) Perf() *perf.Monitor { return h.perf }

// Journal exposes the message journal.
func (h *Hub) Journal() *journal.Journal { return h.journal }

// ClearLocks drops every lock and pending request.
func (h *Hub) ClearLocks() int {
	return h.locks.ClearAll()
}

// ClearUserLocks releases every lock held by userID.
func (h *Hub) ClearUserLocks(userID string) int {
	return h.locks.ClearUser(userID)
}

// Stats summarizes the session.
type Stats struct {
	SessionID          string                    `json:"session_id"`
	Enabled            bool                      `json:"enabled"`
	Debug              bool                      `json:"debug"`
	SimulatedLatencyMs int64                     `json:"simulated_latency_ms"`
	Users              []string                  `json:"users"`
	ActiveLocks        int                       `json:"active_locks"`
	TrackedBlueprints  int                       `json:"tracked_blueprints"`
	JournalEntries     int                       `json:"journal_entries"`
	Relayed            int64                     `json:"relayed"`
	Dropped            map[string]int64          `json:"dropped"`
	Throttle           map[string]throttle.Stats `json:"throttle"`
	Performance        perf.Metrics              `json:"performance"`
}

// Stats returns a snapshot of the session.
func (h *Hub) Stats() Stats {
	h.updateGauges()

	h.mu.RLock()
	s := Stats{
		SessionID:          h.sessionID.String(),
		Enabled:            h.enabled,
		Debug:              h.debug,
		SimulatedLatencyMs: h.latency.Milliseconds(),
		Users:              h.usersLocked(),
		TrackedBlueprints:  len(h.blueprints),
		Relayed:            h.relayed,
		Dropped:            make(map[string]int64, len(h.dropped)),
	}
	for reason, n := range h.dropped {
		s.Dropped[reason] = n
	}
	h.mu.RUnlock()

	s.ActiveLocks = h.locks.Count()
	s.JournalEntries = h.journal.Len()
	s.Throttle = make(map[string]throttle.Stats)
	for t, st := range h.throttle.Totals() {
		s.Throttle[t.String()] = st
	}
	s.Performance = h.perf.Metrics()
	return s
}

// ResetStats clears performance figures, throttle counters and drop counts.
func (h *Hub) ResetStats() {
	h.perf.Reset()
	h.throttle.ResetStats()
	h.mu.Lock()
	h.relayed = 0
	h.dropped = make(map[string]int64)
	h.mu.Unlock()
}

// Close disconnects every participant and stops background work. The
// journal is left to its owner.
func (h *Hub) Close() {
	h.mu.Lock()
	participants := make([]*Participant, 0, len(h.participants))
	for _, p := range h.participants {
		participants = append(participants, p)
	}
	h.participants = make(map[string]*Participant)
	h.mu.Unlock()

	for _, p := range participants {
		p.close()
	}
	h.notes.Close()
	h.perf.Stop()
	h.log.Info("collaboration session closed", zap.String("session", h.sessionID.String()))
}
