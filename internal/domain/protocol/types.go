package protocol

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/deepdev237/LivePrint/internal/shared/id"
)

// MessageType classifies a collaboration message.
type MessageType uint8

const (
	MessageWirePreview MessageType = iota
	MessageNodeOperation
	MessageLockRequest
	MessageLockRelease
	MessageHeartbeat
	MessageBlueprintOpened
	MessageBlueprintClosed
)

var messageTypeNames = [...]string{
	"WirePreview",
	"NodeOperation",
	"LockRequest",
	"LockRelease",
	"Heartbeat",
	"BlueprintOpened",
	"BlueprintClosed",
}

// MessageTypes lists every known message type in declaration order.
func MessageTypes() []MessageType {
	types := make([]MessageType, len(messageTypeNames))
	for i := range types {
		types[i] = MessageType(i)
	}
	return types
}

func (t MessageType) String() string {
	if int(t) < len(messageTypeNames) {
		return messageTypeNames[t]
	}
	return "Unknown"
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return int(t) < len(messageTypeNames)
}

// ParseMessageType is the inverse of MessageType.String.
func ParseMessageType(s string) (MessageType, error) {
	for i, name := range messageTypeNames {
		if name == s {
			return MessageType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown message type %q", s)
}

func (t MessageType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown message type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *MessageType) UnmarshalText(b []byte) error {
	parsed, err := ParseMessageType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// NodeOperationKind is the structural edit carried by a NodeOperation.
type NodeOperationKind uint8

const (
	OpAdd NodeOperationKind = iota
	OpDelete
	OpMove
	OpPinConnect
	OpPinDisconnect
	OpPropertyChange
)

var nodeOperationNames = [...]string{
	"Add",
	"Delete",
	"Move",
	"PinConnect",
	"PinDisconnect",
	"PropertyChange",
}

func (k NodeOperationKind) String() string {
	if int(k) < len(nodeOperationNames) {
		return nodeOperationNames[k]
	}
	return "Unknown"
}

func (k NodeOperationKind) MarshalText() ([]byte, error) {
	if int(k) >= len(nodeOperationNames) {
		return nil, fmt.Errorf("unknown node operation %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *NodeOperationKind) UnmarshalText(b []byte) error {
	for i, name := range nodeOperationNames {
		if name == string(b) {
			*k = NodeOperationKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown node operation %q", b)
}

// LockState is the lock status of a graph node.
type LockState uint8

const (
	Unlocked LockState = iota
	Locked
	Pending
)

var lockStateNames = [...]string{"Unlocked", "Locked", "Pending"}

func (s LockState) String() string {
	if int(s) < len(lockStateNames) {
		return lockStateNames[s]
	}
	return "Unknown"
}

func (s LockState) MarshalText() ([]byte, error) {
	if int(s) >= len(lockStateNames) {
		return nil, fmt.Errorf("unknown lock state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *LockState) UnmarshalText(b []byte) error {
	for i, name := range lockStateNames {
		if name == string(b) {
			*s = LockState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown lock state %q", b)
}

// Vector2D is a position in graph editor space.
type Vector2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WirePreview is the transient feedback of a pin wire being dragged.
type WirePreview struct {
	NodeID    uuid.UUID `json:"node_id"`
	PinName   string    `json:"pin_name"`
	Start     Vector2D  `json:"start"`
	End       Vector2D  `json:"end"`
	UserID    string    `json:"user_id"`
	Timestamp float64   `json:"timestamp"`
}

// NodeOperation is a structural edit of a graph.
type NodeOperation struct {
	Kind          NodeOperationKind `json:"operation"`
	NodeID        uuid.UUID         `json:"node_id"`
	TargetNodeID  uuid.UUID         `json:"target_node_id"`
	PinName       string            `json:"pin_name"`
	TargetPinName string            `json:"target_pin_name"`
	Position      Vector2D          `json:"position"`
	NodeClass     string            `json:"node_class"`
	PropertyData  string            `json:"property_data"`
	UserID        string            `json:"user_id"`
	Timestamp     float64           `json:"timestamp"`
}

// NodeLock describes who holds a node and until when. Times are seconds on
// the Now clock.
type NodeLock struct {
	NodeID     uuid.UUID `json:"node_id"`
	State      LockState `json:"state"`
	UserID     string    `json:"user_id"`
	LockTime   float64   `json:"lock_time"`
	ExpiryTime float64   `json:"expiry_time"`
}

// BlueprintNotice announces that a participant opened or closed a blueprint.
type BlueprintNotice struct {
	BlueprintID uuid.UUID `json:"blueprint_id"`
	Path        string    `json:"path"`
	Name        string    `json:"name"`
}

// Message is the unit relayed between participants. Payload holds the
// encoded WirePreview, NodeOperation, NodeLock or BlueprintNotice.
type Message struct {
	ID          id.MessageID `json:"id,omitempty"`
	Type        MessageType  `json:"type"`
	BlueprintID uuid.UUID    `json:"blueprint_id"`
	GraphID     uuid.UUID    `json:"graph_id"`
	UserID      string       `json:"user_id"`
	Timestamp   float64      `json:"timestamp"`
	Payload     []byte       `json:"payload,omitempty"`
}
