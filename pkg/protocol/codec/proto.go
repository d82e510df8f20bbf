package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// WireMessage is implemented by types that encode their own protobuf wire
// form without generated code.
type WireMessage interface {
	MarshalProtoWire() ([]byte, error)
	UnmarshalProtoWire([]byte) error
}

// maxExactInt is the largest integer a google.protobuf.Value number holds exactly.
const maxExactInt = 1 << 53

type protoCodec struct {
	mo proto.MarshalOptions
	uo proto.UnmarshalOptions
}

// Proto returns a Protocol Buffers codec with deterministic marshaling.
// Values that are neither proto.Message nor WireMessage are carried as a
// google.protobuf.Struct built from their JSON form; integers outside
// ±2^53 are rejected there. Content-Type: application/x-protobuf
func Proto() Codec {
	return protoCodec{
		mo: proto.MarshalOptions{Deterministic: true},
		uo: proto.UnmarshalOptions{},
	}
}

func (p protoCodec) ContentType() string { return ContentProto }

func (p protoCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case proto.Message:
		return p.mo.Marshal(m)
	case WireMessage:
		return m.MarshalProtoWire()
	}
	jb, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protobuf: %T to json: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("protobuf: %T is not an object: %w", v, err)
	}
	fields, err := exactNumbers(m)
	if err != nil {
		return nil, fmt.Errorf("protobuf: %T: %w", v, err)
	}
	s, err := structpb.NewStruct(fields.(map[string]any))
	if err != nil {
		return nil, fmt.Errorf("protobuf: struct: %w", err)
	}
	return p.mo.Marshal(s)
}

func (p protoCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case proto.Message:
		return p.uo.Unmarshal(data, m)
	case WireMessage:
		return m.UnmarshalProtoWire(data)
	}
	var s structpb.Struct
	if err := p.uo.Unmarshal(data, &s); err != nil {
		return err
	}
	jb, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(jb, v)
}

// exactNumbers replaces json.Number values with float64 and fails on
// integers a double cannot represent.
func exactNumbers(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			n, err := exactNumbers(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			x[k] = n
		}
		return x, nil
	case []any:
		for i, e := range x {
			n, err := exactNumbers(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			x[i] = n
		}
		return x, nil
	case json.Number:
		if !strings.ContainsAny(string(x), ".eE") {
			i, err := x.Int64()
			if err != nil || i > maxExactInt || i < -maxExactInt {
				return nil, fmt.Errorf("integer %s does not fit a protobuf number value", x)
			}
			return float64(i), nil
		}
		return x.Float64()
	default:
		return v, nil
	}
}
