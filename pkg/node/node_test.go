package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"relaymesh/pkg/config"
	"relaymesh/pkg/protocol"
	"relaymesh/pkg/transport/mem"
)

type collector struct {
	mu  sync.Mutex
	got []*protocol.InnerEnvelope
}

func (c *collector) EmitResponse(resp *protocol.InnerEnvelope) error {
	c.mu.Lock()
	c.got = append(c.got, resp)
	c.mu.Unlock()
	return nil
}

func (c *collector) find(id string) *protocol.InnerEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.got {
		if r.InResponseTo == id {
			return r
		}
	}
	return nil
}

func testConfig(id string, tcs ...config.TransportConfig) *config.Config {
	cfg := config.Default()
	cfg.NodeID = id
	cfg.Transports = tcs
	cfg.Controller.Socket = ""
	cfg.Node.PollInterval = 5 * time.Millisecond
	cfg.Net.DialBackoffInitialMS = 10
	cfg.Net.DialBackoffMaxMS = 100
	cfg.Net.DialBackoffJitterMS = 0
	return cfg
}

func startNode(t *testing.T, ctx context.Context, cfg *config.Config, mt *mem.Transport) *Node {
	t.Helper()
	n, err := New(cfg, WithMemTransport(mt))
	if err != nil {
		t.Fatalf("new %s: %v", cfg.NodeID, err)
	}
	done := make(chan struct{})
	go func() {
		_ = n.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() { <-done })
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func request(t *testing.T, n *Node, c *collector, to, directive, payload string) *protocol.InnerEnvelope {
	t.Helper()
	req := protocol.NewDirective(n.ID(), to, directive, payload, 0)
	if err := n.Router.Send(req, true); err != nil {
		t.Fatalf("send %s: %v", directive, err)
	}
	var resp *protocol.InnerEnvelope
	waitFor(t, directive+" response", func() bool { resp = c.find(req.MessageID); return resp != nil })
	return resp
}

func TestTwoNodesDirectivesAndResponses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mt := mem.New()
	a := startNode(t, ctx, testConfig("A", config.TransportConfig{Kind: "mem", Listen: []string{"a"}}), mt)
	b := startNode(t, ctx, testConfig("B", config.TransportConfig{Kind: "mem", Dial: []config.PeerDialConfig{{Address: "a", PeerID: "A"}}}), mt)

	waitFor(t, "link", func() bool { _, _, err := a.Router.NextHop("B"); return err == nil })
	waitFor(t, "link back", func() bool { _, _, err := b.Router.NextHop("A"); return err == nil })

	c := &collector{}
	a.Correlator.Attach(c)

	pong := request(t, a, c, "B", "receptor:ping", "")
	if pong.Code != 0 || pong.Sender != "B" {
		t.Fatalf("ping response %+v", pong)
	}
	echo := request(t, a, c, "B", "echo:say", "hello")
	if echo.Code != 0 || echo.Payload != "hello" {
		t.Fatalf("echo response %+v", echo)
	}
	bad := request(t, a, c, "B", "bogus", "")
	if bad.Code != 1 || bad.TTL != 15 || bad.Serial != 2 {
		t.Fatalf("error response %+v", bad)
	}
	none := request(t, a, c, "B", "nobody:home", "")
	if none.Code != 1 {
		t.Fatalf("missing executor should fail: %+v", none)
	}
}

func TestSelfAddressedDirectiveUsesLoopback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := startNode(t, ctx, testConfig("solo"), mem.New())
	c := &collector{}
	n.Correlator.Attach(c)
	resp := request(t, n, c, "solo", "receptor:status", "")
	if resp.Code != 0 || resp.Recipient != "solo" {
		t.Fatalf("status response %+v", resp)
	}
}

func TestInnerFormatsInterop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mt := mem.New()
	ca := testConfig("A", config.TransportConfig{Kind: "mem", Listen: []string{"fa"}})
	ca.Node.InnerFormat = "cbor"
	cb := testConfig("B", config.TransportConfig{Kind: "mem", Dial: []config.PeerDialConfig{{Address: "fa", PeerID: "A"}}})
	cb.Node.InnerFormat = "proto"
	a := startNode(t, ctx, ca, mt)
	b := startNode(t, ctx, cb, mt)
	waitFor(t, "link", func() bool {
		_, _, e1 := a.Router.NextHop("B")
		_, _, e2 := b.Router.NextHop("A")
		return e1 == nil && e2 == nil
	})
	c := &collector{}
	a.Correlator.Attach(c)
	if resp := request(t, a, c, "B", "echo:x", "mixed"); resp.Payload != "mixed" {
		t.Fatalf("echo across formats: %+v", resp)
	}
}
