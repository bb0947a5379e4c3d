package protocol

import (
	"github.com/google/uuid"

	"github.com/deepdev237/LivePrint/internal/shared/id"
)

// Target addresses a graph inside a blueprint.
type Target struct {
	BlueprintID uuid.UUID `json:"blueprint_id"`
	GraphID     uuid.UUID `json:"graph_id"`
}

func newMessage(t MessageType, target Target, userID string, payload []byte) Message {
	return Message{
		ID:          id.NewMessageID(),
		Type:        t,
		BlueprintID: target.BlueprintID,
		GraphID:     target.GraphID,
		UserID:      userID,
		Timestamp:   Now(),
		Payload:     payload,
	}
}

// NewWirePreviewMessage wraps a preview. binary selects MessagePack over JSON.
func NewWirePreviewMessage(target Target, p WirePreview, binary bool) (Message, error) {
	if p.Timestamp <= 0 {
		p.Timestamp = Now()
	}
	encode := EncodeWirePreviewJSON
	if binary {
		encode = EncodeWirePreview
	}
	payload, err := encode(p)
	if err != nil {
		return Message{}, err
	}
	return newMessage(MessageWirePreview, target, p.UserID, payload), nil
}

// NewNodeOperationMessage wraps a node operation.
func NewNodeOperationMessage(target Target, op NodeOperation) (Message, error) {
	if op.Timestamp <= 0 {
		op.Timestamp = Now()
	}
	payload, err := EncodeNodeOperation(op)
	if err != nil {
		return Message{}, err
	}
	return newMessage(MessageNodeOperation, target, op.UserID, payload), nil
}

// NewLockMessage wraps a lock as a LockRequest or LockRelease.
func NewLockMessage(t MessageType, target Target, lock NodeLock) (Message, error) {
	payload, err := EncodeNodeLock(lock)
	if err != nil {
		return Message{}, err
	}
	return newMessage(t, target, lock.UserID, payload), nil
}

// NewBlueprintMessage wraps a BlueprintOpened or BlueprintClosed notice.
func NewBlueprintMessage(t MessageType, graphID uuid.UUID, userID string, n BlueprintNotice) (Message, error) {
	payload, err := EncodeBlueprintNotice(n)
	if err != nil {
		return Message{}, err
	}
	return newMessage(t, Target{BlueprintID: n.BlueprintID, GraphID: graphID}, userID, payload), nil
}

// NewHeartbeat builds a payload-less heartbeat.
func NewHeartbeat(target Target, userID string) Message {
	return newMessage(MessageHeartbeat, target, userID, nil)
}
