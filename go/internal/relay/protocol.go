package relay

import (
	"encoding/json"
	"fmt"
)

// MessageType names a relay protocol message.
type MessageType string

const (
	// MessageRequestSync asks the relay for the last snapshot it holds.
	MessageRequestSync MessageType = "REQUEST_SYNC"
	// MessageSyncState carries a full snapshot from the relay to a client.
	MessageSyncState MessageType = "SYNC_STATE"
	// MessageUpdateState carries a full snapshot from a client to the relay.
	MessageUpdateState MessageType = "UPDATE_STATE"
)

// DefaultRoom is used when a client does not name one.
const DefaultRoom = "main"

// Envelope is the wire frame for every relay message. Payload is passed
// through untouched.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode builds a wire frame.
func Encode(t MessageType, payload json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(Envelope{Type: t, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return b, nil
}

// Decode parses a wire frame.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}
