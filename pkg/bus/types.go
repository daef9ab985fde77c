package bus

import (
	"context"
	"net/http"
)

// Property is one message property. Properties keep insertion order.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Properties is an ordered key/value mapping carried alongside a payload.
type Properties []Property

// Add appends key/value, keeping earlier entries untouched.
func (p *Properties) Add(key, value string) {
	*p = append(*p, Property{Key: key, Value: value})
}

// Clone returns an independent copy in the same order.
func (p Properties) Clone() Properties {
	if len(p) == 0 {
		return nil
	}
	out := make(Properties, len(p))
	copy(out, p)
	return out
}

// Map flattens properties into a map; later duplicates win.
func (p Properties) Map() map[string]string {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]string, len(p))
	for _, prop := range p {
		out[prop.Key] = prop.Value
	}
	return out
}

// Message is the envelope exchanged with the cloud session.
type Message struct {
	Payload    []byte     `json:"payload"`
	Properties Properties `json:"properties,omitempty"`
}

// Clone copies payload and properties so the result shares no memory with m.
func (m Message) Clone() Message {
	var payload []byte
	if m.Payload != nil {
		payload = make([]byte, len(m.Payload))
		copy(payload, m.Payload)
	}
	return Message{Payload: payload, Properties: m.Properties.Clone()}
}

// Outbound is a message addressed to a named session output.
type Outbound struct {
	Output  string
	Message Message
}

// Command is one remote invocation delivered by the session.
type Command struct {
	Name    string `json:"name"`
	Payload []byte `json:"payload,omitempty"`
}

// CommandResult is returned to the remote caller.
type CommandResult struct {
	Status  int    `json:"status"`
	Payload []byte `json:"payload,omitempty"`
}

const (
	StatusOK       = http.StatusOK
	StatusNotFound = http.StatusNotFound
	StatusError    = http.StatusInternalServerError
)

// Disposition acknowledges an inbound message to the session.
type Disposition int

const (
	Completed Disposition = iota
	Rejected
)

func (d Disposition) String() string {
	switch d {
	case Completed:
		return "completed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type MessageHandler func(context.Context, Message) Disposition

type CommandHandler func(context.Context, Command) CommandResult
