package client

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
)

// SendWirePreview publishes the wire being dragged from pin on node. It
// reports false when the preview was throttled locally and not sent.
func (c *Client) SendWirePreview(target protocol.Target, node uuid.UUID, pin string, start, end protocol.Vector2D) (bool, error) {
	if !c.IsConnected() {
		return false, ErrNotConnected
	}
	now := c.now()
	if !c.throttle.Allow(protocol.MessageWirePreview, c.userID, now) {
		return false, nil
	}

	preview := protocol.WirePreview{
		NodeID:    node,
		PinName:   pin,
		Start:     start,
		End:       end,
		UserID:    c.userID,
		Timestamp: now,
	}
	if err := protocol.ValidateWirePreview(preview); err != nil {
		return false, err
	}
	msg, err := protocol.NewWirePreviewMessage(target, preview, c.binary)
	if err != nil {
		return false, err
	}
	if err := c.write(msg); err != nil {
		return false, err
	}
	return true, nil
}

// SendNodeOperation publishes a structural edit. Operations on nodes locked
// by another user fail with ErrNodeLocked without reaching the hub.
func (c *Client) SendNodeOperation(target protocol.Target, op protocol.NodeOperation) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	op.UserID = c.userID
	if op.Timestamp <= 0 {
		op.Timestamp = c.now()
	}
	if err := protocol.ValidateNodeOperation(op); err != nil {
		return err
	}
	if !c.CanModifyNode(op.NodeID) {
		return ErrNodeLocked
	}
	msg, err := protocol.NewNodeOperationMessage(target, op)
	if err != nil {
		return err
	}
	return c.write(msg)
}

// SendLockRequest asks the hub for node. A zero duration requests
// DefaultLockDuration. The outcome arrives as a lock change.
func (c *Client) SendLockRequest(target protocol.Target, node uuid.UUID, duration time.Duration) error {
	if duration <= 0 {
		duration = DefaultLockDuration
	}
	now := c.now()
	lock := protocol.NodeLock{
		NodeID:     node,
		State:      protocol.Locked,
		UserID:     c.userID,
		LockTime:   now,
		ExpiryTime: now + duration.Seconds(),
	}
	return c.sendLock(protocol.MessageLockRequest, target, lock)
}

// SendLockRelease gives node back.
func (c *Client) SendLockRelease(target protocol.Target, node uuid.UUID) error {
	now := c.now()
	lock := protocol.NodeLock{
		NodeID:     node,
		State:      protocol.Unlocked,
		UserID:     c.userID,
		LockTime:   now,
		ExpiryTime: now,
	}
	return c.sendLock(protocol.MessageLockRelease, target, lock)
}

func (c *Client) sendLock(t protocol.MessageType, target protocol.Target, lock protocol.NodeLock) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if !protocol.ValidGUID(lock.NodeID) {
		return fmt.Errorf("%w: lock requires a node id", protocol.ErrInvalidMessage)
	}
	msg, err := protocol.NewLockMessage(t, target, lock)
	if err != nil {
		return err
	}
	return c.write(msg)
}

// OpenBlueprint announces that this editor opened a blueprint's graph. The
// graph becomes the heartbeat target.
func (c *Client) OpenBlueprint(graphID uuid.UUID, n protocol.BlueprintNotice) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := protocol.ValidateBlueprintNotice(n); err != nil {
		return err
	}
	msg, err := protocol.NewBlueprintMessage(protocol.MessageBlueprintOpened, graphID, c.userID, n)
	if err != nil {
		return err
	}
	if err := c.write(msg); err != nil {
		return err
	}
	c.mu.Lock()
	c.blueprint = &protocol.Target{BlueprintID: n.BlueprintID, GraphID: graphID}
	c.mu.Unlock()
	return nil
}

// CloseBlueprint announces that this editor closed a blueprint.
func (c *Client) CloseBlueprint(graphID uuid.UUID, n protocol.BlueprintNotice) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	msg, err := protocol.NewBlueprintMessage(protocol.MessageBlueprintClosed, graphID, c.userID, n)
	if err != nil {
		return err
	}
	if err := c.write(msg); err != nil {
		return err
	}
	c.mu.Lock()
	if c.blueprint != nil && c.blueprint.BlueprintID == n.BlueprintID {
		c.blueprint = nil
	}
	c.mu.Unlock()
	return nil
}

// SendHeartbeat announces this editor on target right away.
func (c *Client) SendHeartbeat(target protocol.Target) error {
	return c.write(protocol.NewHeartbeat(target, c.userID))
}

// Lock returns the mirrored lock on node, if any.
func (c *Client) Lock(node uuid.UUID) (protocol.NodeLock, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lock, ok := c.locks[node]
	if !ok || lock.State != protocol.Locked || lock.ExpiryTime <= c.now() {
		return protocol.NodeLock{}, false
	}
	return lock, true
}

// Locks lists the live locks the hub has announced.
func (c *Client) Locks() []protocol.NodeLock {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	out := make([]protocol.NodeLock, 0, len(c.locks))
	for _, lock := range c.locks {
		if lock.State == protocol.Locked && lock.ExpiryTime > now {
			out = append(out, lock)
		}
	}
	return out
}

// IsNodeLockedByOther reports whether another user holds node.
func (c *Client) IsNodeLockedByOther(node uuid.UUID) bool {
	lock, ok := c.Lock(node)
	return ok && lock.UserID != c.userID
}

// CanModifyNode reports whether this client may edit node.
func (c *Client) CanModifyNode(node uuid.UUID) bool {
	return !c.IsNodeLockedByOther(node)
}
