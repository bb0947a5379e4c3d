package notify

import (
	"strings"

	"github.com/google/uuid"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/shared/id"
)

// Type classifies a collaboration notification.
type Type uint8

const (
	UserJoined Type = iota
	UserLeft
	NodeLocked
	NodeUnlocked
	NodeAdded
	NodeDeleted
	NodeMoved
	ConnectionMade
	ConnectionBroken
	ConflictResolved
	SyncError
	NetworkError
)

var typeNames = [...]string{
	"UserJoined",
	"UserLeft",
	"NodeLocked",
	"NodeUnlocked",
	"NodeAdded",
	"NodeDeleted",
	"NodeMoved",
	"ConnectionMade",
	"ConnectionBroken",
	"ConflictResolved",
	"SyncError",
	"NetworkError",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Color is a linear RGBA color.
type Color [4]float32

var (
	green      = Color{0, 1, 0, 1}
	orange     = Color{1, 0.5, 0, 1}
	yellow     = Color{1, 1, 0, 1}
	lightGreen = Color{0.5, 1, 0.5, 1}
	blue       = Color{0, 0, 1, 1}
	lightRed   = Color{1, 0.3, 0.3, 1}
	cyan       = Color{0, 1, 1, 1}
	olive      = Color{0.8, 0.8, 0, 1}
	red        = Color{1, 0, 0, 1}
	white      = Color{1, 1, 1, 1}
)

// ColorFor returns the display color of t.
func ColorFor(t Type) Color {
	switch t {
	case UserJoined:
		return green
	case UserLeft:
		return orange
	case NodeLocked:
		return yellow
	case NodeUnlocked:
		return lightGreen
	case NodeAdded, ConnectionMade:
		return blue
	case NodeDeleted, ConnectionBroken:
		return lightRed
	case NodeMoved:
		return cyan
	case ConflictResolved:
		return olive
	case SyncError, NetworkError:
		return red
	default:
		return white
	}
}

// TemplateFor returns the message template of t. Templates may reference
// {UserId}, {UserDisplayName} and {NodeId}.
func TemplateFor(t Type) string {
	switch t {
	case UserJoined:
		return "{UserDisplayName} joined the collaboration session"
	case UserLeft:
		return "{UserDisplayName} left the collaboration session"
	case NodeLocked:
		return "{UserDisplayName} locked a node"
	case NodeUnlocked:
		return "{UserDisplayName} unlocked a node"
	case NodeAdded:
		return "{UserDisplayName} added a node"
	case NodeDeleted:
		return "{UserDisplayName} deleted a node"
	case NodeMoved:
		return "{UserDisplayName} moved a node"
	case ConnectionMade:
		return "{UserDisplayName} connected pins"
	case ConnectionBroken:
		return "{UserDisplayName} disconnected pins"
	case ConflictResolved:
		return "Collaboration conflict resolved"
	case SyncError:
		return "Synchronization error occurred"
	case NetworkError:
		return "Network error occurred"
	default:
		return "Unknown notification"
	}
}

// ForOperation maps a node operation to the notification announcing it.
func ForOperation(kind protocol.NodeOperationKind) (Type, bool) {
	switch kind {
	case protocol.OpAdd:
		return NodeAdded, true
	case protocol.OpDelete:
		return NodeDeleted, true
	case protocol.OpMove:
		return NodeMoved, true
	case protocol.OpPinConnect:
		return ConnectionMade, true
	case protocol.OpPinDisconnect:
		return ConnectionBroken, true
	default:
		return 0, false
	}
}

// Format fills the placeholders of tmpl.
func Format(tmpl, userID, displayName string, node uuid.UUID) string {
	return strings.NewReplacer(
		"{UserId}", userID,
		"{UserDisplayName}", displayName,
		"{NodeId}", node.String(),
	).Replace(tmpl)
}

// Notification is one collaboration notice shown to participants.
type Notification struct {
	ID              id.NotificationID
	Type            Type
	UserID          string
	UserDisplayName string
	Message         string
	NodeID          uuid.UUID
	Timestamp       float64
	Duration        float64
	Color           Color
}

// Expired reports whether n should no longer be displayed at now.
func (n Notification) Expired(now float64) bool {
	return now-n.Timestamp > n.Duration
}

// Notice converts n to its wire form.
func (n Notification) Notice() protocol.Notice {
	notice := protocol.Notice{
		ID:              n.ID.String(),
		Type:            n.Type.String(),
		Message:         n.Message,
		UserID:          n.UserID,
		UserDisplayName: n.UserDisplayName,
		Color:           n.Color,
		Timestamp:       n.Timestamp,
		Duration:        n.Duration,
	}
	if protocol.ValidGUID(n.NodeID) {
		notice.NodeID = n.NodeID.String()
	}
	return notice
}
