package chat

import (
	"encoding/json"
	"fmt"
)

// Message is the wire format for every pub/sub payload. Name and Body are
// required on inbound messages; Channel is carried on outbound broadcasts so
// clients can route without re-parsing the topic.
type Message struct {
	Name    string `json:"name"`
	Channel string `json:"channel,omitempty"`
	Body    string `json:"message"`
}

// Encode serializes the message for publishing.
func (m Message) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(data), nil
}

// DecodeMessage parses an inbound payload. A payload that is not a JSON
// object, or that lacks the name or message field, yields a malformed_message
// domain error; callers drop the payload and keep receiving.
func DecodeMessage(payload string) (Message, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Message{}, chatError(ErrCodeMalformedMessage, fmt.Sprintf("undecodable payload: %v", err))
	}

	var msg Message
	if err := decodeField(raw, "name", &msg.Name); err != nil {
		return Message{}, err
	}
	if err := decodeField(raw, "message", &msg.Body); err != nil {
		return Message{}, err
	}
	if chRaw, ok := raw["channel"]; ok {
		// channel is optional and advisory; a bad value is still malformed
		if err := json.Unmarshal(chRaw, &msg.Channel); err != nil {
			return Message{}, chatError(ErrCodeMalformedMessage, "field channel is not a string")
		}
	}
	return msg, nil
}

func decodeField(raw map[string]json.RawMessage, field string, dst *string) error {
	fieldRaw, ok := raw[field]
	if !ok {
		return chatError(ErrCodeMalformedMessage, fmt.Sprintf("missing required field %s", field))
	}
	if err := json.Unmarshal(fieldRaw, dst); err != nil {
		return chatError(ErrCodeMalformedMessage, fmt.Sprintf("field %s is not a string", field))
	}
	return nil
}
