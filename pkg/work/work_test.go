package work

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"relaymesh/pkg/protocol"
)

type captureSender struct {
	mu   sync.Mutex
	sent []*protocol.InnerEnvelope
}

func (c *captureSender) Self() string { return "B" }
func (c *captureSender) Send(inner *protocol.InnerEnvelope, expect bool) error {
	c.mu.Lock()
	c.sent = append(c.sent, inner)
	c.mu.Unlock()
	return nil
}
func (c *captureSender) snapshot() []*protocol.InnerEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.InnerEnvelope(nil), c.sent...)
}

// blocker holds its work until release is closed.
type blocker struct{ release chan struct{} }

func (b blocker) CanHandle(ns string) bool { return ns == "slow" }
func (b blocker) Execute(ctx context.Context, inner *protocol.InnerEnvelope) (<-chan Result, error) {
	out := make(chan Result)
	go func() {
		defer close(out)
		select {
		case <-b.release:
		case <-ctx.Done():
			return
		}
		out <- Result{Payload: "first"}
		out <- Result{Payload: "second", Code: 0}
	}()
	return out, nil
}

func TestEchoProducesResponse(t *testing.T) {
	cs := &captureSender{}
	m := NewManager(cs, 2, 15)
	m.Register(Echo{})
	req := protocol.NewDirective("A", "B", "echo:say", "hello", 0)
	if err := m.Handle(context.Background(), req); err != nil {
		t.Fatalf("handle: %v", err)
	}
	m.Close()
	sent := cs.snapshot()
	if len(sent) != 1 {
		t.Fatalf("responses = %d", len(sent))
	}
	r := sent[0]
	if r.Payload != "hello" || r.InResponseTo != req.MessageID || r.Recipient != "A" || r.Serial != 2 || r.TTL != 15 {
		t.Fatalf("bad response %+v", r)
	}
}

func TestNoExecutor(t *testing.T) {
	m := NewManager(&captureSender{}, 1, 15)
	defer m.Close()
	err := m.Handle(context.Background(), protocol.NewDirective("A", "B", "nope:x", "", 0))
	if !errors.Is(err, ErrNoExecutor) {
		t.Fatalf("err = %v, want ErrNoExecutor", err)
	}
}

func TestCapacityBoundAndStreamedResults(t *testing.T) {
	cs := &captureSender{}
	m := NewManager(cs, 1, 0)
	b := blocker{release: make(chan struct{})}
	m.Register(b)
	if err := m.Handle(context.Background(), protocol.NewDirective("A", "B", "slow:x", "", 0)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := m.Handle(context.Background(), protocol.NewDirective("A", "B", "slow:y", "", 0)); !errors.Is(err, ErrBusy) {
		t.Fatalf("second = %v, want ErrBusy", err)
	}
	close(b.release)
	deadline := time.Now().Add(2 * time.Second)
	for len(cs.snapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("results not delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.Close()
	got := cs.snapshot()
	if got[0].Payload != "first" || got[1].Payload != "second" {
		t.Fatalf("results out of order: %q %q", got[0].Payload, got[1].Payload)
	}
}
