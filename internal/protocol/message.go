package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

/*
WIRE PROTOCOL

Every frame on the room channel is a JSON object with a "type" discriminator.
The document is transmitted whole on every change; there are no revisions,
no diffs and no acknowledgements, so the last update received always wins.

  client → server   {"type":"code_change","code":"..."}
  server → client   {"type":"initial_state","code":"..."}   snapshot on join
  server → client   {"type":"code_update","code":"..."}     another participant's edit
*/

// MessageType is the value of the "type" discriminator
type MessageType string

const (
	TypeCodeChange   MessageType = "code_change"
	TypeInitialState MessageType = "initial_state"
	TypeCodeUpdate   MessageType = "code_update"
)

// ErrMalformedMessage is returned when a frame cannot be decoded
var ErrMalformedMessage = errors.New("malformed message")

// Message is a single frame on the room channel
type Message struct {
	Type MessageType `json:"type"`
	Code string      `json:"code"`
}

// wireMessage keeps Code optional while decoding so a missing field can be told apart from ""
type wireMessage struct {
	Type MessageType `json:"type"`
	Code *string     `json:"code"`
}

func CodeChange(code string) Message   { return Message{Type: TypeCodeChange, Code: code} }
func InitialState(code string) Message { return Message{Type: TypeInitialState, Code: code} }
func CodeUpdate(code string) Message   { return Message{Type: TypeCodeUpdate, Code: code} }

// IsDocumentUpdate reports whether the message replaces the receiver's document
func (m Message) IsDocumentUpdate() bool {
	return m.Type == TypeInitialState || m.Type == TypeCodeUpdate
}

// carriesCode reports whether the type requires a code field
func (t MessageType) carriesCode() bool {
	switch t {
	case TypeCodeChange, TypeInitialState, TypeCodeUpdate:
		return true
	}
	return false
}

// Encode serializes a message to its wire form
func Encode(m Message) ([]byte, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("encode message: missing type")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// Decode parses a wire frame. Unknown types decode successfully; callers
// dispatch on Type and ignore what they don't understand.
func Decode(data []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if wire.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	msg := Message{Type: wire.Type}
	if wire.Code != nil {
		msg.Code = *wire.Code
	} else if wire.Type.carriesCode() {
		return Message{}, fmt.Errorf("%w: %s without code", ErrMalformedMessage, wire.Type)
	}
	return msg, nil
}
