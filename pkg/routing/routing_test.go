package routing

import (
	"errors"
	"testing"
	"time"

	"relaymesh/pkg/buffers"
	"relaymesh/pkg/memkv"
	"relaymesh/pkg/protocol"
	"relaymesh/pkg/protocol/codec"
	"relaymesh/pkg/responses"
)

func TestGraphUnorderedPairs(t *testing.T) {
	g := NewGraph()
	g.Register("b", "a", 5)
	e, ok := g.Find("a", "b")
	if !ok || e.Cost != 5 || e.A != "a" || e.B != "b" {
		t.Fatalf("find mismatch: %+v %v", e, ok)
	}
	g.Register("a", "b", 5)
	if cs := g.Costs("a", "b"); len(cs) != 1 {
		t.Fatalf("duplicate cost registered: %v", cs)
	}
	g.Register("a", "a", 1)
	if g.Len() != 1 {
		t.Fatalf("self loop registered")
	}
}

func TestGraphUpdateReplacesLowest(t *testing.T) {
	g := NewGraph()
	g.Register("a", "b", 5)
	g.Register("a", "b", 10)
	g.Update("a", "b", 3)
	cs := g.Costs("a", "b")
	if len(cs) != 2 || cs[0] != 3 || cs[1] != 10 {
		t.Fatalf("costs = %v", cs)
	}
	g.Update("x", "y", 7)
	if e, ok := g.Find("y", "x"); !ok || e.Cost != 7 {
		t.Fatalf("update on unknown pair should register")
	}
}

func TestGraphRemoveNode(t *testing.T) {
	g := NewGraph()
	g.Register("a", "b", 1)
	g.Register("b", "c", 1)
	g.Register("c", "d", 1)
	g.RemoveNode("b")
	if g.Len() != 1 {
		t.Fatalf("edges = %v", g.Edges())
	}
}

func TestBuildTableShortestFirstHop(t *testing.T) {
	// a-b 1, b-c 1, a-c 5, c-d 1
	edges := []Edge{{"a", "b", 1}, {"b", "c", 1}, {"a", "c", 5}, {"c", "d", 1}}
	tbl := BuildTable("a", edges)
	want := Table{"b": "b", "c": "b", "d": "b"}
	if len(tbl) != len(want) {
		t.Fatalf("table = %v", tbl)
	}
	for k, v := range want {
		if tbl[k] != v {
			t.Fatalf("table[%s] = %q, want %q (%v)", k, tbl[k], v, tbl)
		}
	}
	if _, ok := tbl["a"]; ok {
		t.Fatalf("self must not appear in table")
	}
}

func TestBuildTableTieBreakStable(t *testing.T) {
	edges := []Edge{{"a", "c", 1}, {"a", "b", 1}, {"b", "d", 1}, {"c", "d", 1}}
	for i := 0; i < 20; i++ {
		if hop := BuildTable("a", edges)["d"]; hop != "b" {
			t.Fatalf("hop = %q, want b", hop)
		}
	}
}

type capture struct {
	frames map[string][][]byte
	fail   map[string]error
}

func (c *capture) BufferFor(node string) buffers.Buffer { return &captureBuf{c: c, node: node} }

type captureBuf struct {
	c    *capture
	node string
}

func (b *captureBuf) Push(p []byte) error {
	if err := b.c.fail[b.node]; err != nil {
		return err
	}
	b.c.frames[b.node] = append(b.c.frames[b.node], p)
	return nil
}
func (b *captureBuf) PushControl(p []byte) error { return b.Push(p) }

func newRouter(t *testing.T, self string) (*Router, *capture) {
	t.Helper()
	kv := memkv.New(memkv.Options{})
	t.Cleanup(kv.Close)
	c := &capture{frames: map[string][][]byte{}, fail: map[string]error{}}
	r := New(Options{Self: self, Buffers: c, Responses: responses.NewRegistry(kv), Codecs: codec.NewRegistry(), ResponseTTL: time.Minute})
	return r, c
}

func TestNextHopLocalRelayUnknown(t *testing.T) {
	r, _ := newRouter(t, "a")
	r.AddPeer("b", 1)
	r.Apply(func(g *Graph) { g.Register("b", "c", 1) })

	if _, local, err := r.NextHop("a"); !local || err != nil {
		t.Fatalf("self should be local: %v %v", local, err)
	}
	if hop, local, err := r.NextHop("c"); local || err != nil || hop != "b" {
		t.Fatalf("c via b expected: %q %v %v", hop, local, err)
	}
	if _, _, err := r.NextHop("zz"); !IsNoRoute(err) {
		t.Fatalf("expected no route, got %v", err)
	}
}

func TestRemovePeerDropsRoutes(t *testing.T) {
	r, _ := newRouter(t, "a")
	r.AddPeer("b", 1)
	r.Apply(func(g *Graph) { g.Register("b", "c", 1) })
	r.RemovePeer("b")
	if _, _, err := r.NextHop("c"); !IsNoRoute(err) {
		t.Fatalf("expected no route after peer down, got %v", err)
	}
	// a re-advertised a-b edge alone does not resurrect a dead link
	r.Apply(func(g *Graph) { g.Register("a", "b", 1) })
	if _, _, err := r.NextHop("b"); !IsNoRoute(err) {
		t.Fatalf("dead link used for routing")
	}
	if len(r.Peers()) != 0 {
		t.Fatalf("peers = %v", r.Peers())
	}
}

func TestSendRegistersAndRoutes(t *testing.T) {
	r, c := newRouter(t, "a")
	r.AddPeer("b", 1)
	inner := protocol.NewDirective("a", "b", "receptor:ping", "", 30)
	if err := r.Send(inner, true); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(c.frames["b"]) != 1 {
		t.Fatalf("frame not pushed to b: %v", c.frames)
	}
	if e, ok := r.Responses().Lookup(inner.MessageID); !ok || e.Recipient != "b" {
		t.Fatalf("request not registered: %+v %v", e, ok)
	}
	outer, err := protocol.DecodeOuter(c.frames["b"][0])
	if err != nil || outer.Recipient != "b" || outer.Sender != "a" {
		t.Fatalf("outer mismatch: %+v %v", outer, err)
	}

	local := protocol.NewDirective("a", "a", "receptor:ping", "", 30)
	if err := r.Send(local, false); err != nil {
		t.Fatalf("local send: %v", err)
	}
	if len(c.frames["a"]) != 1 {
		t.Fatalf("local send should use own buffer")
	}
}

func TestSendFailureUnregisters(t *testing.T) {
	r, c := newRouter(t, "a")
	r.AddPeer("b", 1)
	c.fail["b"] = &buffers.WriteError{Node: "b", Err: buffers.ErrBufferFull}
	inner := protocol.NewDirective("a", "b", "x:y", "", 30)
	err := r.Send(inner, true)
	if !errors.Is(err, buffers.ErrBufferFull) {
		t.Fatalf("expected buffer full, got %v", err)
	}
	if _, ok := r.Responses().Lookup(inner.MessageID); ok {
		t.Fatalf("failed request still registered")
	}
	if err := r.Send(protocol.NewDirective("a", "nowhere", "x:y", "", 30), false); !IsNoRoute(err) {
		t.Fatalf("expected no route, got %v", err)
	}
}

func TestForwardRelaysBytesUnchanged(t *testing.T) {
	r, c := newRouter(t, "a")
	frame := []byte(`{"frame_id":"f","sender":"x","recipient":"c","inner":"AXt9"}`)
	if err := r.Forward(frame, "b"); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if string(c.frames["b"][0]) != string(frame) {
		t.Fatalf("frame altered")
	}
}

func TestRouterRemoveNode(t *testing.T) {
	r, _ := newRouter(t, "a")
	r.AddPeer("b", 1)
	r.Apply(func(g *Graph) { g.Register("b", "c", 1) })
	if _, _, err := r.NextHop("c"); err != nil {
		t.Fatalf("c unreachable: %v", err)
	}
	r.RemoveNode("c")
	if _, _, err := r.NextHop("c"); !IsNoRoute(err) {
		t.Fatalf("route to removed node survived: %v", err)
	}
	if _, _, err := r.NextHop("b"); err != nil {
		t.Fatalf("unrelated route lost: %v", err)
	}
}
