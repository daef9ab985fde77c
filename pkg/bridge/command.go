package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidCommand = errors.New("invalid command payload")

const messageField = "message"

// extraction is the outcome of pulling the text to write out of a command
// payload. Exactly one of message or err is meaningful.
type extraction struct {
	message string
	err     error
}

func (e extraction) ok() bool {
	return e.err == nil
}

// extractMessage reads the required string field "message" from a JSON
// object payload.
func extractMessage(payload []byte) extraction {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return extraction{err: fmt.Errorf("%w: %v", ErrInvalidCommand, err)}
	}

	raw, ok := body[messageField]
	if !ok || string(raw) == "null" {
		return extraction{err: fmt.Errorf("%w: missing %q field", ErrInvalidCommand, messageField)}
	}

	var message string
	if err := json.Unmarshal(raw, &message); err != nil {
		return extraction{err: fmt.Errorf("%w: %q must be a string", ErrInvalidCommand, messageField)}
	}

	return extraction{message: message}
}
