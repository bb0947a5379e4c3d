package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrEmptyPayload is returned when decoding zero-length data.
var ErrEmptyPayload = errors.New("protocol: empty payload")

// EncodeNodeOperation encodes a node operation as JSON.
func EncodeNodeOperation(op NodeOperation) ([]byte, error) {
	data, err := sonic.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encode node operation: %w", err)
	}
	return data, nil
}

// DecodeNodeOperation decodes a JSON node operation.
func DecodeNodeOperation(data []byte) (NodeOperation, error) {
	var op NodeOperation
	if len(data) == 0 {
		return op, ErrEmptyPayload
	}
	if err := sonic.Unmarshal(data, &op); err != nil {
		return NodeOperation{}, fmt.Errorf("decode node operation: %w", err)
	}
	return op, nil
}

// EncodeNodeLock encodes a node lock as JSON.
func EncodeNodeLock(lock NodeLock) ([]byte, error) {
	data, err := sonic.Marshal(lock)
	if err != nil {
		return nil, fmt.Errorf("encode node lock: %w", err)
	}
	return data, nil
}

// DecodeNodeLock decodes a JSON node lock.
func DecodeNodeLock(data []byte) (NodeLock, error) {
	var lock NodeLock
	if len(data) == 0 {
		return lock, ErrEmptyPayload
	}
	if err := sonic.Unmarshal(data, &lock); err != nil {
		return NodeLock{}, fmt.Errorf("decode node lock: %w", err)
	}
	return lock, nil
}

// EncodeBlueprintNotice encodes a blueprint notice as JSON.
func EncodeBlueprintNotice(n BlueprintNotice) ([]byte, error) {
	data, err := sonic.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode blueprint notice: %w", err)
	}
	return data, nil
}

// DecodeBlueprintNotice decodes a JSON blueprint notice.
func DecodeBlueprintNotice(data []byte) (BlueprintNotice, error) {
	var n BlueprintNotice
	if len(data) == 0 {
		return n, ErrEmptyPayload
	}
	if err := sonic.Unmarshal(data, &n); err != nil {
		return BlueprintNotice{}, fmt.Errorf("decode blueprint notice: %w", err)
	}
	return n, nil
}

// wirePreviewFrame is the compact positional layout of a wire preview.
type wirePreviewFrame struct {
	_msgpack struct{} `msgpack:",as_array"`

	NodeID    []byte
	PinName   string
	StartX    float64
	StartY    float64
	EndX      float64
	EndY      float64
	UserID    string
	Timestamp float64
}

// EncodeWirePreview encodes a wire preview as a MessagePack array.
func EncodeWirePreview(p WirePreview) ([]byte, error) {
	frame := wirePreviewFrame{
		NodeID:    p.NodeID[:],
		PinName:   p.PinName,
		StartX:    p.Start.X,
		StartY:    p.Start.Y,
		EndX:      p.End.X,
		EndY:      p.End.Y,
		UserID:    p.UserID,
		Timestamp: p.Timestamp,
	}
	data, err := msgpack.Marshal(&frame)
	if err != nil {
		return nil, fmt.Errorf("encode wire preview: %w", err)
	}
	return data, nil
}

// EncodeWirePreviewJSON encodes a wire preview as JSON, for peers that have
// binary previews turned off.
func EncodeWirePreviewJSON(p WirePreview) ([]byte, error) {
	data, err := sonic.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode wire preview: %w", err)
	}
	return data, nil
}

// DecodeWirePreview decodes a wire preview in either encoding. JSON objects
// are recognized by their leading brace.
func DecodeWirePreview(data []byte) (WirePreview, error) {
	if len(data) == 0 {
		return WirePreview{}, ErrEmptyPayload
	}

	if data[0] == '{' {
		var p WirePreview
		if err := sonic.Unmarshal(data, &p); err != nil {
			return WirePreview{}, fmt.Errorf("decode wire preview: %w", err)
		}
		return p, nil
	}

	var frame wirePreviewFrame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return WirePreview{}, fmt.Errorf("decode wire preview: %w", err)
	}
	nodeID, err := uuid.FromBytes(frame.NodeID)
	if err != nil {
		return WirePreview{}, fmt.Errorf("decode wire preview node id: %w", err)
	}
	return WirePreview{
		NodeID:    nodeID,
		PinName:   frame.PinName,
		Start:     Vector2D{X: frame.StartX, Y: frame.StartY},
		End:       Vector2D{X: frame.EndX, Y: frame.EndY},
		UserID:    frame.UserID,
		Timestamp: frame.Timestamp,
	}, nil
}

// EncodeMessage encodes a message as JSON.
func EncodeMessage(m Message) ([]byte, error) {
	data, err := sonic.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// DecodeMessage decodes a JSON message.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if len(data) == 0 {
		return m, ErrEmptyPayload
	}
	if err := sonic.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}
