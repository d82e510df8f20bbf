package protocol

import "fmt"

// MalformedEnvelopeError reports an envelope that is missing required fields
// or cannot be decoded. It is fatal for one message only.
type MalformedEnvelopeError struct {
	Layer  string // "outer" or "inner"
	Reason string
	Err    error
}

func (e *MalformedEnvelopeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s envelope: %s: %v", e.Layer, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s envelope: %s", e.Layer, e.Reason)
}

func (e *MalformedEnvelopeError) Unwrap() error { return e.Err }

func malformed(layer, reason string, err error) error {
	return &MalformedEnvelopeError{Layer: layer, Reason: reason, Err: err}
}
