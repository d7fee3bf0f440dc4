// Package ipc implements the newline-delimited JSON channel between the bot
// process and the agent hook processes, over a unix domain socket.
package ipc

import "encoding/json"

// Message is the wire envelope. Type routes to a handler, RequestID
// correlates a reply with an in-flight request, Payload carries the body.
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope with the payload marshalled in place.
func NewMessage(msgType, requestID string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, RequestID: requestID, Payload: raw}, nil
}

// DecodePayload unmarshals the payload into out.
func (m Message) DecodePayload(out any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, out)
}

// errorPayload is the body of a {type: "error"} reply.
type errorPayload struct {
	Error string `json:"error"`
}
