package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Protobuf field numbers of InnerEnvelope. Integers use zigzag varints so
// every int64 value survives unchanged.
const (
	fieldMessageType  protowire.Number = 1
	fieldSender       protowire.Number = 2
	fieldRecipient    protowire.Number = 3
	fieldMessageID    protowire.Number = 4
	fieldInResponseTo protowire.Number = 5
	fieldSerial       protowire.Number = 6
	fieldTTL          protowire.Number = 7
	fieldCode         protowire.Number = 8
	fieldTimestamp    protowire.Number = 9
	fieldDirective    protowire.Number = 10
	fieldPayload      protowire.Number = 11
)

// MarshalProtoWire encodes e as a protobuf message. Zero fields are omitted
// and fields are written in number order, so the output is deterministic.
func (e *InnerEnvelope) MarshalProtoWire() ([]byte, error) {
	var b []byte
	str := func(n protowire.Number, s string) {
		if s != "" {
			b = protowire.AppendTag(b, n, protowire.BytesType)
			b = protowire.AppendString(b, s)
		}
	}
	num := func(n protowire.Number, v int) {
		if v != 0 {
			b = protowire.AppendTag(b, n, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
		}
	}
	str(fieldMessageType, e.MessageType)
	str(fieldSender, e.Sender)
	str(fieldRecipient, e.Recipient)
	str(fieldMessageID, e.MessageID)
	str(fieldInResponseTo, e.InResponseTo)
	num(fieldSerial, e.Serial)
	num(fieldTTL, e.TTL)
	num(fieldCode, e.Code)
	str(fieldTimestamp, e.Timestamp)
	str(fieldDirective, e.Directive)
	str(fieldPayload, e.Payload)
	return b, nil
}

// UnmarshalProtoWire decodes a message written by MarshalProtoWire. Unknown
// fields are skipped.
func (e *InnerEnvelope) UnmarshalProtoWire(b []byte) error {
	*e = InnerEnvelope{}
	for len(b) > 0 {
		n, typ, l := protowire.ConsumeTag(b)
		if l < 0 {
			return protowire.ParseError(l)
		}
		b = b[l:]

		var dst *string
		var idst *int
		switch n {
		case fieldMessageType:
			dst = &e.MessageType
		case fieldSender:
			dst = &e.Sender
		case fieldRecipient:
			dst = &e.Recipient
		case fieldMessageID:
			dst = &e.MessageID
		case fieldInResponseTo:
			dst = &e.InResponseTo
		case fieldTimestamp:
			dst = &e.Timestamp
		case fieldDirective:
			dst = &e.Directive
		case fieldPayload:
			dst = &e.Payload
		case fieldSerial:
			idst = &e.Serial
		case fieldTTL:
			idst = &e.TTL
		case fieldCode:
			idst = &e.Code
		}

		switch {
		case dst != nil && typ == protowire.BytesType:
			s, l := protowire.ConsumeString(b)
			if l < 0 {
				return protowire.ParseError(l)
			}
			*dst, b = s, b[l:]
		case idst != nil && typ == protowire.VarintType:
			v, l := protowire.ConsumeVarint(b)
			if l < 0 {
				return protowire.ParseError(l)
			}
			*idst, b = int(protowire.DecodeZigZag(v)), b[l:]
		case dst != nil || idst != nil:
			return fmt.Errorf("field %d: unexpected wire type %d", n, typ)
		default:
			l := protowire.ConsumeFieldValue(n, typ, b)
			if l < 0 {
				return protowire.ParseError(l)
			}
			b = b[l:]
		}
	}
	return nil
}
