package protocol

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidMessage wraps every validation failure.
var ErrInvalidMessage = errors.New("invalid message")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}

// ValidGUID reports whether g is set.
func ValidGUID(g uuid.UUID) bool {
	return g != uuid.Nil
}

// ValidateMessage checks the envelope fields and that a payload is present
// for every type that carries one.
func ValidateMessage(m Message) error {
	if !ValidGUID(m.BlueprintID) || !ValidGUID(m.GraphID) {
		return invalid("blueprint and graph ids are required")
	}
	if m.UserID == "" {
		return invalid("user id is required")
	}
	if m.Timestamp <= 0 {
		return invalid("timestamp must be positive")
	}

	switch m.Type {
	case MessageHeartbeat:
		return nil
	case MessageWirePreview, MessageNodeOperation, MessageLockRequest, MessageLockRelease,
		MessageBlueprintOpened, MessageBlueprintClosed:
		if len(m.Payload) == 0 {
			return invalid("%s requires a payload", m.Type)
		}
		return nil
	default:
		return invalid("unknown message type %d", uint8(m.Type))
	}
}

// ValidateNodeOperation checks the fields each operation kind depends on.
func ValidateNodeOperation(op NodeOperation) error {
	if !ValidGUID(op.NodeID) || op.UserID == "" {
		return invalid("node id and user id are required")
	}

	switch op.Kind {
	case OpAdd:
		if op.NodeClass == "" {
			return invalid("add requires a node class")
		}
	case OpDelete, OpMove:
	case OpPinConnect, OpPinDisconnect:
		if !ValidGUID(op.TargetNodeID) || op.PinName == "" {
			return invalid("%s requires a target node and pin name", op.Kind)
		}
	case OpPropertyChange:
		if op.PropertyData == "" {
			return invalid("property change requires property data")
		}
	default:
		return invalid("unknown node operation %d", uint8(op.Kind))
	}
	return nil
}

// ValidateWirePreview checks a wire preview.
func ValidateWirePreview(p WirePreview) error {
	if !ValidGUID(p.NodeID) || p.UserID == "" || p.PinName == "" {
		return invalid("wire preview requires node, pin and user")
	}
	if p.Timestamp <= 0 {
		return invalid("timestamp must be positive")
	}
	return nil
}

// ValidateNodeLock checks a node lock.
func ValidateNodeLock(l NodeLock) error {
	if !ValidGUID(l.NodeID) || l.UserID == "" {
		return invalid("node id and user id are required")
	}
	if l.LockTime <= 0 || l.ExpiryTime <= l.LockTime {
		return invalid("lock must expire after it was taken")
	}
	return nil
}

// ValidateBlueprintNotice checks a blueprint notice.
func ValidateBlueprintNotice(n BlueprintNotice) error {
	if !ValidGUID(n.BlueprintID) || n.Path == "" {
		return invalid("blueprint notice requires id and path")
	}
	return nil
}
