package ws

import (
	"encoding/json"

	"serialbridge/pkg/bus"
)

const (
	typeMessage       = "message"
	typeAck           = "ack"
	typeCommand       = "command"
	typeCommandResult = "command_result"
)

// envelope is one JSON text frame on the connection. Message frames carry
// Body (base64 on the wire) and Properties; command frames carry a raw JSON
// Payload; replies echo the request ID.
type envelope struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Body       []byte          `json:"body,omitempty"`
	Properties bus.Properties  `json:"properties,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     string          `json:"status,omitempty"`
	Code       int             `json:"code,omitempty"`
}

func messageEnvelope(output string, msg bus.Message) envelope {
	return envelope{Type: typeMessage, Name: output, Body: msg.Payload, Properties: msg.Properties}
}

func ackEnvelope(id string, disposition bus.Disposition) envelope {
	return envelope{Type: typeAck, ID: id, Status: disposition.String()}
}

// resultEnvelope wraps a command result. Result payloads that are not valid
// JSON are sent as a JSON string.
func resultEnvelope(id string, result bus.CommandResult) envelope {
	env := envelope{Type: typeCommandResult, ID: id, Code: result.Status}
	if len(result.Payload) == 0 {
		return env
	}
	if json.Valid(result.Payload) {
		env.Payload = json.RawMessage(result.Payload)
		return env
	}
	quoted, _ := json.Marshal(string(result.Payload))
	env.Payload = quoted
	return env
}
