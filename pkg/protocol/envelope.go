package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"relaymesh/pkg/protocol/codec"
)

// Message types carried by an inner envelope.
const (
	TypeDirective = "directive"
	TypeResponse  = "response"
)

// OuterEnvelope is the routing-level wrapper. Relays read Recipient and pass
// the rest on untouched; Inner is only decoded at the final recipient.
type OuterEnvelope struct {
	FrameID   string `json:"frame_id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Inner     []byte `json:"inner"`
}

// InnerEnvelope is the addressed, typed payload visible at the destination.
type InnerEnvelope struct {
	MessageType  string `json:"message_type"`
	Sender       string `json:"sender"`
	Recipient    string `json:"recipient"`
	MessageID    string `json:"message_id"`
	InResponseTo string `json:"in_response_to,omitempty"`
	Serial       int    `json:"serial"`
	TTL          int    `json:"ttl"`
	Code         int    `json:"code"`
	Timestamp    string `json:"timestamp"`
	Directive    string `json:"directive,omitempty"`
	Payload      string `json:"payload"`
}

// NewDirective builds a directive envelope with a fresh message id.
func NewDirective(sender, recipient, directive, payload string, ttl int) *InnerEnvelope {
	return &InnerEnvelope{
		MessageType: TypeDirective,
		Sender:      sender,
		Recipient:   recipient,
		MessageID:   uuid.NewString(),
		Serial:      1,
		TTL:         ttl,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Directive:   directive,
		Payload:     payload,
	}
}

// MakeResponse builds a response addressed back to the sender of e.
func (e *InnerEnvelope) MakeResponse(sender string, code int, payload string, ttl int) *InnerEnvelope {
	return &InnerEnvelope{
		MessageType:  TypeResponse,
		Sender:       sender,
		Recipient:    e.Sender,
		MessageID:    uuid.NewString(),
		InResponseTo: e.MessageID,
		Serial:       e.Serial + 1,
		TTL:          ttl,
		Code:         code,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		Payload:      payload,
	}
}

// Expired reports whether the envelope outlived its ttl. Envelopes without a
// ttl or a parseable timestamp never expire.
func (e *InnerEnvelope) Expired(now time.Time) bool {
	if e.TTL <= 0 || e.Timestamp == "" {
		return false
	}
	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return false
	}
	return ts.Add(time.Duration(e.TTL) * time.Second).Before(now)
}

func (e *InnerEnvelope) validate() error {
	switch {
	case e.MessageType == "":
		return malformed("inner", "missing message_type", nil)
	case e.MessageID == "":
		return malformed("inner", "missing message_id", nil)
	case e.Sender == "":
		return malformed("inner", "missing sender", nil)
	}
	return nil
}

// EncodeInner serializes an inner envelope with a leading format byte.
func EncodeInner(r *codec.Registry, f Format, e *InnerEnvelope) ([]byte, error) {
	return EncodeBody(r, f, e)
}

// NewOuter encodes inner and wraps it in an outer envelope addressed to
// inner.Recipient.
func NewOuter(inner *InnerEnvelope, sender string, r *codec.Registry, f Format) (*OuterEnvelope, error) {
	b, err := EncodeInner(r, f, inner)
	if err != nil {
		return nil, err
	}
	return &OuterEnvelope{
		FrameID:   uuid.NewString(),
		Sender:    sender,
		Recipient: inner.Recipient,
		Inner:     b,
	}, nil
}

// Marshal returns the wire form of the outer envelope.
func (o *OuterEnvelope) Marshal() ([]byte, error) { return json.Marshal(o) }

// DecodeOuter decodes the outer envelope only. Inner bytes stay opaque.
func DecodeOuter(b []byte) (*OuterEnvelope, error) {
	var o OuterEnvelope
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, malformed("outer", "decode", err)
	}
	if o.Recipient == "" {
		return nil, malformed("outer", "missing recipient", nil)
	}
	if len(o.Inner) == 0 {
		return nil, malformed("outer", "missing inner", nil)
	}
	return &o, nil
}

// DecodeInner decodes the inner payload. Call it only at the final recipient.
func (o *OuterEnvelope) DecodeInner(r *codec.Registry) (*InnerEnvelope, error) {
	var e InnerEnvelope
	if _, err := DecodeBody(r, o.Inner, &e); err != nil {
		return nil, malformed("inner", "decode", err)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
