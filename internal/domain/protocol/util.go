package protocol

import (
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Defaults for the geometry and freshness helpers.
const (
	DefaultNearbyThreshold = 5.0
	DefaultMaxAge          = 5.0
)

// Clock returns the current time in seconds.
type Clock func() float64

// Now returns Unix time in seconds. Message, preview and lock timestamps use
// this clock so they compare across processes.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// IsRecent reports whether ts is no older than maxAge seconds.
func IsRecent(ts, maxAge float64) bool {
	return Now()-ts <= maxAge
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Vector2D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Nearby reports whether a and b are within threshold of each other.
func Nearby(a, b Vector2D, threshold float64) bool {
	return Distance(a, b) <= threshold
}

// NodeOperationHash identifies an operation by node, kind and user.
func NodeOperationHash(op NodeOperation) uint64 {
	d := xxhash.New()
	_, _ = d.Write(op.NodeID[:])
	_, _ = d.Write([]byte{byte(op.Kind)})
	_, _ = d.WriteString(op.UserID)
	return d.Sum64()
}

// WirePreviewHash identifies a preview stream by node, pin and user.
func WirePreviewHash(p WirePreview) uint64 {
	d := xxhash.New()
	_, _ = d.Write(p.NodeID[:])
	_, _ = d.WriteString(p.PinName)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(p.UserID)
	return d.Sum64()
}
