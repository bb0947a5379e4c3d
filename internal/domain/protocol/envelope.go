package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// EnvelopeKind tags a WebSocket frame.
type EnvelopeKind string

const (
	KindMessage      EnvelopeKind = "message"
	KindWelcome      EnvelopeKind = "welcome"
	KindPresence     EnvelopeKind = "presence"
	KindNotification EnvelopeKind = "notification"
	KindError        EnvelopeKind = "error"
)

// Envelope is one WebSocket frame between the hub and a participant.
// Exactly one body field is set, matching Kind.
type Envelope struct {
	Kind         EnvelopeKind `json:"kind"`
	Message      *Message     `json:"message,omitempty"`
	Welcome      *Welcome     `json:"welcome,omitempty"`
	Presence     *Presence    `json:"presence,omitempty"`
	Notification *Notice      `json:"notification,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// Welcome is sent once to a participant after it joins.
type Welcome struct {
	UserID    string     `json:"user_id"`
	SessionID string     `json:"session_id"`
	Users     []string   `json:"users"`
	Locks     []NodeLock `json:"locks"`
	// BinaryPreviews tells the participant which wire preview encoding the
	// hub prefers.
	BinaryPreviews bool `json:"binary_previews"`
}

// Presence lists connected users after someone joined or left.
type Presence struct {
	Users  []string `json:"users"`
	Joined string   `json:"joined,omitempty"`
	Left   string   `json:"left,omitempty"`
}

// Notice is a collaboration notification as seen on the wire.
type Notice struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Message         string     `json:"message"`
	UserID          string     `json:"user_id,omitempty"`
	UserDisplayName string     `json:"user_display_name,omitempty"`
	NodeID          string     `json:"node_id,omitempty"`
	Color           [4]float32 `json:"color"`
	Timestamp       float64    `json:"timestamp"`
	Duration        float64    `json:"duration"`
}

// EncodeEnvelope encodes an envelope as JSON.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	data, err := sonic.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope decodes a JSON envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if len(data) == 0 {
		return e, ErrEmptyPayload
	}
	if err := sonic.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Kind == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing kind")
	}
	return e, nil
}

// MessageEnvelope wraps a message.
func MessageEnvelope(m Message) Envelope {
	return Envelope{Kind: KindMessage, Message: &m}
}

// ErrorEnvelope wraps an error string.
func ErrorEnvelope(msg string) Envelope {
	return Envelope{Kind: KindError, Error: msg}
}
