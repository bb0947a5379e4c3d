// Package id provides centralized ID generation for the collaboration hub.
//
// Hub-owned identifiers (participants, sessions, messages, notifications,
// requests) are prefixed ULIDs:
//   - Lexicographic sortability: message journals sort by creation time
//   - Prefixed types: part_*, sess_*, msg_*, note_*, req_* read well in logs
//   - Type safety: separate types prevent ID misuse
//
// Graph-side identifiers (blueprints, graphs, nodes) come from the editor as
// GUIDs and are handled by the protocol package with google/uuid.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// ParticipantID identifies one connected editor instance
type ParticipantID string

// SessionID identifies a collaboration session
type SessionID string

// MessageID identifies a relayed collaboration message
type MessageID string

// NotificationID identifies a collaboration notification
type NotificationID string

// RequestID identifies an admin API request
type RequestID string

// ============================================================================
// ID Prefixes
// ============================================================================

const (
	ParticipantPrefix  = "part"
	SessionPrefix      = "sess"
	MessagePrefix      = "msg"
	NotificationPrefix = "note"
	RequestPrefix      = "req"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// GenerateBatch creates multiple ULIDs in one lock acquisition
func (g *Generator) GenerateBatch(count int) []ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	ids := make([]ulid.ULID, count)
	ts := ulid.Timestamp(time.Now())
	for i := range ids {
		ids[i] = ulid.MustNew(ts, g.entropy)
	}
	return ids
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewParticipantID generates a new participant ID
func NewParticipantID() ParticipantID {
	return ParticipantID(Default().GenerateWithPrefix(ParticipantPrefix))
}

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewMessageID generates a new message ID
func NewMessageID() MessageID {
	return MessageID(Default().GenerateWithPrefix(MessagePrefix))
}

// NewNotificationID generates a new notification ID
func NewNotificationID() NotificationID {
	return NotificationID(Default().GenerateWithPrefix(NotificationPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id ParticipantID) String() string  { return string(id) }
func (id SessionID) String() string      { return string(id) }
func (id MessageID) String() string      { return string(id) }
func (id NotificationID) String() string { return string(id) }
func (id RequestID) String() string      { return string(id) }

// ============================================================================
// Parsing
// ============================================================================

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string, with or without a type prefix
func Parse(id string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
