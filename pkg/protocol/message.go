package protocol

import (
	"encoding/json"
	"fmt"
)

// Control commands carried in the "cmd" field of link-level frames.
// Frames without a cmd are application outer envelopes.
const (
	CmdRoute = "ROUTE"
	CmdHello = "HI"
)

// Message is one classified inbound frame.
type Message struct {
	Cmd   string
	Route *RouteAdvertisement // set when Cmd == CmdRoute
	Raw   []byte
}

// IsRoute reports whether m is a route advertisement.
func (m Message) IsRoute() bool { return m.Cmd == CmdRoute && m.Route != nil }

// ParseMessage classifies one inbound frame.
func ParseMessage(b []byte) (Message, error) {
	var probe struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return Message{}, malformed("frame", "decode", err)
	}
	m := Message{Cmd: probe.Cmd, Raw: b}
	if probe.Cmd == CmdRoute {
		var ra RouteAdvertisement
		if err := json.Unmarshal(b, &ra); err != nil {
			return Message{}, malformed("route", "decode", err)
		}
		m.Route = &ra
	}
	return m, nil
}

// WireEdge is an edge on the wire: a 3-element array [a, b, cost].
type WireEdge struct {
	A, B string
	Cost float64
}

func (e WireEdge) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{e.A, e.B, e.Cost})
}

func (e *WireEdge) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("edge: want 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.A); err != nil {
		return fmt.Errorf("edge node a: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.B); err != nil {
		return fmt.Errorf("edge node b: %w", err)
	}
	if err := json.Unmarshal(raw[2], &e.Cost); err != nil {
		return fmt.Errorf("edge cost: %w", err)
	}
	return nil
}

// RouteAdvertisement is the gossip frame exchanged between peers.
type RouteAdvertisement struct {
	Cmd   string     `json:"cmd"`
	ID    string     `json:"id"`
	Edges []WireEdge `json:"edges"`
	Seen  []string   `json:"seen"`
}

// Marshal returns the wire form with cmd set to ROUTE.
func (ra *RouteAdvertisement) Marshal() ([]byte, error) {
	ra.Cmd = CmdRoute
	if ra.Edges == nil {
		ra.Edges = []WireEdge{}
	}
	if ra.Seen == nil {
		ra.Seen = []string{}
	}
	return json.Marshal(ra)
}
