package chat

import (
	"encoding/json"
	"time"
)

// Message is one in-app chat message between the pair.
type Message struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessageRequest is the payload for posting a chat message.
type SendMessageRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Call signaling kinds. The gateway relays these between the two clients;
// the payload is the WebRTC blob (SDP or ICE candidate) and is opaque here.
const (
	CallOffer     = "offer"
	CallAnswer    = "answer"
	CallCandidate = "candidate"
	CallHangup    = "hangup"
)

// CallSignal is one entry in the call signaling log.
type CallSignal struct {
	ID        int64           `json:"id"`
	Caller    string          `json:"caller"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// SignalCallRequest appends one signaling step.
type SignalCallRequest struct {
	Caller  string          `json:"caller"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
