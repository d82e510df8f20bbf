package protocol

import (
	"errors"
	"testing"
)

func TestParseRouteAdvertisement(t *testing.T) {
	raw := []byte(`{"cmd":"ROUTE","id":"a","edges":[["a","b",1.5],["b","c",2]],"seen":["a"]}`)
	m, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !m.IsRoute() {
		t.Fatalf("expected route message")
	}
	ra := m.Route
	if ra.ID != "a" || len(ra.Edges) != 2 || len(ra.Seen) != 1 {
		t.Fatalf("unexpected advert: %+v", ra)
	}
	if ra.Edges[0] != (WireEdge{A: "a", B: "b", Cost: 1.5}) || ra.Edges[1].Cost != 2 {
		t.Fatalf("edge mismatch: %+v", ra.Edges)
	}
}

func TestRouteAdvertisementMarshal(t *testing.T) {
	ra := &RouteAdvertisement{ID: "x", Edges: []WireEdge{{A: "x", B: "y", Cost: 3}}}
	b, err := ra.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"cmd":"ROUTE","id":"x","edges":[["x","y",3]],"seen":[]}`
	if string(b) != want {
		t.Fatalf("wire mismatch:\n got %s\nwant %s", b, want)
	}
}

func TestParseApplicationFrame(t *testing.T) {
	m, err := ParseMessage([]byte(`{"recipient":"b","inner":"AQ=="}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Cmd != "" || m.IsRoute() {
		t.Fatalf("expected application frame, got %+v", m)
	}
}

func TestParseMessageErrors(t *testing.T) {
	var me *MalformedEnvelopeError
	if _, err := ParseMessage([]byte("nope")); !errors.As(err, &me) {
		t.Fatalf("expected malformed, got %v", err)
	}
	if _, err := ParseMessage([]byte(`{"cmd":"ROUTE","edges":[["a","b"]]}`)); !errors.As(err, &me) {
		t.Fatalf("expected malformed for short edge, got %v", err)
	}
}
