package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/domain/notify"
	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/infrastructure/config"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
)

// Publish runs msg from the participant named from through the hub:
// validation, throttling, lock checks and relay to every other participant.
// Routine drops return ErrThrottled or ErrDuplicatePreview; see Silent.
func (h *Hub) Publish(ctx context.Context, from string, msg protocol.Message) error {
	stop := h.perf.Time("publish")
	defer stop()

	h.mu.RLock()
	enabled := h.enabled
	p, joined := h.participants[from]
	settings := h.settings
	h.mu.RUnlock()

	if !joined {
		return ErrUnknownParticipant
	}
	if !enabled {
		h.countDrop("disabled")
		return ErrCollaborationDisabled
	}

	now := h.now()
	p.touch(now)
	if msg.UserID == "" {
		msg.UserID = from
	}
	if msg.UserID != from {
		h.reject(from, "user_mismatch")
		return ErrUserMismatch
	}
	if err := protocol.ValidateMessage(msg); err != nil {
		h.reject(from, "validation")
		return err
	}

	latencyMs := max(0, (now-msg.Timestamp)*1000)
	h.perf.RecordReceived(msg.Type, len(msg.Payload), latencyMs)
	if settings.LogAllMessages {
		h.log.Debug("message received",
			logging.User(from),
			logging.MessageType(msg.Type.String()),
			zap.Int("size", len(msg.Payload)),
			zap.Float64("latency_ms", latencyMs))
	}

	var err error
	relay := true
	switch msg.Type {
	case protocol.MessageWirePreview:
		err = h.handleWirePreview(from, msg, settings, now)
	case protocol.MessageHeartbeat:
		err = h.throttled(protocol.MessageHeartbeat, from, now)
	case protocol.MessageNodeOperation:
		err = h.handleNodeOperation(from, msg, settings)
	case protocol.MessageLockRequest:
		relay = false
		err = h.handleLockRequest(from, msg, settings)
	case protocol.MessageLockRelease:
		relay = false
		err = h.handleLockRelease(from, msg)
	case protocol.MessageBlueprintOpened, protocol.MessageBlueprintClosed:
		err = h.handleBlueprint(from, msg)
	}
	if err != nil {
		return err
	}

	if _, jerr := h.journal.Append(ctx, msg); jerr != nil {
		h.log.Warn("journal append failed", zap.Error(jerr))
	}
	if relay {
		h.relay(from, msg)
	}
	return nil
}

// reject counts a message refused before relay.
func (h *Hub) reject(from, kind string) {
	h.perf.RecordError(kind, false)
	h.countDrop(kind)
}

func (h *Hub) throttled(t protocol.MessageType, from string, now float64) error {
	if !h.throttle.Allow(t, from, now) {
		h.countDrop("throttled")
		if h.metrics != nil {
			h.metrics.RecordThrottled(t.String())
		}
		return ErrThrottled
	}
	return nil
}

func (h *Hub) handleWirePreview(from string, msg protocol.Message, settings config.Settings, now float64) error {
	if !settings.EnableWirePreviews {
		h.countDrop("previews_disabled")
		return ErrPreviewsDisabled
	}
	preview, err := protocol.DecodeWirePreview(msg.Payload)
	if err != nil {
		h.reject(from, "decode")
		return fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	if err := protocol.ValidateWirePreview(preview); err != nil {
		h.reject(from, "validation")
		return err
	}
	if preview.UserID != from {
		h.reject(from, "user_mismatch")
		return ErrUserMismatch
	}

	// A preview is compared against the last one relayed for the same pin,
	// so a throttled position is never mistaken for one peers have seen.
	key := protocol.WirePreviewHash(preview)
	h.mu.RLock()
	last, seen := h.lastPreviews[key]
	h.mu.RUnlock()
	if seen &&
		protocol.Nearby(last.preview.Start, preview.Start, settings.MinimumMovementThreshold) &&
		protocol.Nearby(last.preview.End, preview.End, settings.MinimumMovementThreshold) {
		h.countDrop("duplicate")
		return ErrDuplicatePreview
	}

	if err := h.throttled(protocol.MessageWirePreview, from, now); err != nil {
		return err
	}

	h.mu.Lock()
	h.lastPreviews[key] = relayedPreview{preview: preview, at: now}
	h.mu.Unlock()
	return nil
}

func (h *Hub) handleNodeOperation(from string, msg protocol.Message, settings config.Settings) error {
	op, err := protocol.DecodeNodeOperation(msg.Payload)
	if err != nil {
		h.reject(from, "decode")
		return fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	if err := protocol.ValidateNodeOperation(op); err != nil {
		h.reject(from, "validation")
		return err
	}
	if op.UserID != from {
		h.reject(from, "user_mismatch")
		return ErrUserMismatch
	}

	if settings.EnableNodeLocking {
		if !h.locks.CanUserModify(op.NodeID, from) {
			h.conflict(from, op)
			return ErrNodeLocked
		}
		h.locks.Touch(op.NodeID, from)
	}

	if t, ok := notify.ForOperation(op.Kind); ok {
		h.notes.NodeEvent(t, from, from, op.NodeID)
	}
	return nil
}

// conflict tells the sender its operation lost against another user's lock.
func (h *Hub) conflict(from string, op protocol.NodeOperation) {
	owner := h.locks.Owner(op.NodeID)
	h.perf.RecordError("sync", false)
	h.countDrop("conflict")
	h.log.Info("operation rejected by lock",
		logging.User(from),
		logging.Node(op.NodeID.String()),
		zap.String("owner", owner),
		zap.String("operation", op.Kind.String()))

	settings := h.Settings()
	if !settings.EnableConflictResolution {
		h.send(from, protocol.ErrorEnvelope(ErrNodeLocked.Error()))
		return
	}

	n := h.notes.Create(notify.ConflictResolved, from, from,
		fmt.Sprintf("Conflict resolved: %s on node %s - kept changes of %s",
			op.Kind, op.NodeID, owner),
		op.NodeID)
	notice := n.Notice()
	h.send(from, protocol.Envelope{Kind: protocol.KindNotification, Notification: &notice})

	syncErr := h.notes.Create(notify.SyncError, from, from,
		fmt.Sprintf("Node %s is locked by %s", op.NodeID, owner), op.NodeID)
	syncErr.Duration = notify.ErrorDuration
	errNotice := syncErr.Notice()
	h.send(from, protocol.Envelope{Kind: protocol.KindNotification, Notification: &errNotice})
}

func (h *Hub) handleLockRequest(from string, msg protocol.Message, settings config.Settings) error {
	if !settings.EnableNodeLocking {
		h.countDrop("locking_disabled")
		return ErrLockingDisabled
	}
	lock, err := h.decodeLock(from, msg)
	if err != nil {
		return err
	}

	duration := time.Duration((lock.ExpiryTime - lock.LockTime) * float64(time.Second))
	if duration <= 0 {
		duration = settings.LockDuration()
	}

	h.rememberTarget(lock.NodeID, msg)
	if h.locks.RequestLock(lock.NodeID, from, duration) {
		h.notes.NodeLocked(from, from, lock.NodeID)
	}
	return nil
}

func (h *Hub) handleLockRelease(from string, msg protocol.Message) error {
	lock, err := h.decodeLock(from, msg)
	if err != nil {
		return err
	}
	h.rememberTarget(lock.NodeID, msg)
	if h.locks.ReleaseLock(lock.NodeID, from) {
		h.notes.NodeEvent(notify.NodeUnlocked, from, from, lock.NodeID)
	}
	return nil
}

func (h *Hub) decodeLock(from string, msg protocol.Message) (protocol.NodeLock, error) {
	lock, err := protocol.DecodeNodeLock(msg.Payload)
	if err != nil {
		h.reject(from, "decode")
		return lock, fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	if !protocol.ValidGUID(lock.NodeID) {
		h.reject(from, "validation")
		return lock, fmt.Errorf("%w: lock requires a node id", protocol.ErrInvalidMessage)
	}
	if lock.UserID != "" && lock.UserID != from {
		h.reject(from, "user_mismatch")
		return lock, ErrUserMismatch
	}
	return lock, nil
}

func (h *Hub) rememberTarget(node uuid.UUID, msg protocol.Message) {
	h.mu.Lock()
	h.lockTargets[node] = protocol.Target{BlueprintID: msg.BlueprintID, GraphID: msg.GraphID}
	h.mu.Unlock()
}

// relay queues msg for every participant except its sender, after the
// simulated latency if one is set.
func (h *Hub) relay(from string, msg protocol.Message) {
	h.mu.Lock()
	h.relayed++
	delay := h.latency
	h.mu.Unlock()

	deliver := func() {
		env := protocol.MessageEnvelope(msg)
		h.mu.RLock()
		recipients := make([]*Participant, 0, len(h.participants))
		for userID, p := range h.participants {
			if userID != from {
				recipients = append(recipients, p)
			}
		}
		h.mu.RUnlock()

		for _, p := range recipients {
			h.deliver(p, env)
			h.perf.RecordSent(msg.Type, len(msg.Payload))
		}
	}

	if delay > 0 {
		time.AfterFunc(delay, deliver)
		return
	}
	deliver()
}
