package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"relaymesh/pkg/advert"
	"relaymesh/pkg/buffers"
	"relaymesh/pkg/memkv"
	"relaymesh/pkg/protocol"
	"relaymesh/pkg/responses"
	"relaymesh/pkg/routing"
)

type capture struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

func (c *capture) BufferFor(node string) buffers.Buffer { return capBuf{c, node} }

type capBuf struct {
	c    *capture
	node string
}

func (b capBuf) Push(p []byte) error {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	b.c.frames[b.node] = append(b.c.frames[b.node], p)
	return nil
}
func (b capBuf) PushControl(p []byte) error { return b.Push(p) }

func (c *capture) decoded(t *testing.T, r *routing.Router, node string) []*protocol.InnerEnvelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.InnerEnvelope
	for _, f := range c.frames[node] {
		if m, err := protocol.ParseMessage(f); err == nil && m.IsRoute() {
			continue
		}
		o, err := protocol.DecodeOuter(f)
		if err != nil {
			t.Fatalf("outer: %v", err)
		}
		in, err := o.DecodeInner(r.Codecs())
		if err != nil {
			t.Fatalf("inner: %v", err)
		}
		out = append(out, in)
	}
	return out
}

type fakeWork struct{ err error }

func (f fakeWork) Handle(ctx context.Context, inner *protocol.InnerEnvelope) error { return f.err }

func setup(t *testing.T, work Worker) (*Dispatcher, *routing.Router, *capture) {
	t.Helper()
	kv := memkv.New(memkv.Options{})
	t.Cleanup(kv.Close)
	c := &capture{frames: map[string][][]byte{}}
	r := routing.New(routing.Options{Self: "B", Buffers: c, Responses: responses.NewRegistry(kv)})
	r.AddPeer("A", 1)
	ctl := NewControl(r, advert.New(r, c), nil)
	return New(Options{Router: r, Control: ctl, Work: work}), r, c
}

func TestParseDirective(t *testing.T) {
	d, err := ParseDirective("receptor:ping")
	if err != nil || d.Namespace != "receptor" || d.Action != "ping" || d.Kind() != KindControl {
		t.Fatalf("got %+v %v", d, err)
	}
	d, err = ParseDirective("jobs:run:fast")
	if err != nil || d.Namespace != "jobs" || d.Action != "run:fast" || d.Kind() != KindWork {
		t.Fatalf("got %+v %v", d, err)
	}
	for _, bad := range []string{"bogus", "", ":x", "x:"} {
		if _, err := ParseDirective(bad); !errors.Is(err, ErrInvalidDirective) {
			t.Fatalf("%q: err = %v", bad, err)
		}
	}
}

func TestInvalidDirectiveGetsOneErrorResponse(t *testing.T) {
	d, r, c := setup(t, nil)
	req := protocol.NewDirective("A", "B", "bogus", "x", 0)
	req.Serial = 4
	d.Dispatch(context.Background(), req)

	got := c.decoded(t, r, "A")
	if len(got) != 1 {
		t.Fatalf("responses = %d, want 1", len(got))
	}
	resp := got[0]
	if resp.MessageType != protocol.TypeResponse || resp.Code != CodeError || resp.TTL != 15 {
		t.Fatalf("bad error response %+v", resp)
	}
	if resp.InResponseTo != req.MessageID || resp.Serial != 5 || resp.Recipient != "A" || resp.Sender != "B" {
		t.Fatalf("bad correlation %+v", resp)
	}
	if !strings.Contains(resp.Payload, "invalid directive") {
		t.Fatalf("payload = %q", resp.Payload)
	}
}

func TestWorkFailureAndUnknownControlAction(t *testing.T) {
	d, r, c := setup(t, fakeWork{err: errors.New("no executor")})
	d.Dispatch(context.Background(), protocol.NewDirective("A", "B", "jobs:run", "", 0))
	d.Dispatch(context.Background(), protocol.NewDirective("A", "B", "receptor:reboot", "", 0))
	got := c.decoded(t, r, "A")
	if len(got) != 2 || got[0].Code != CodeError || got[1].Code != CodeError {
		t.Fatalf("responses = %+v", got)
	}
	if !strings.Contains(got[1].Payload, `unknown control action "reboot"`) {
		t.Fatalf("payload = %q", got[1].Payload)
	}
	if _, err := ParseControlAction("reboot"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("parse err = %v", err)
	}
	ctl := NewControl(r, nil, nil)
	if _, err := ctl.Handle(context.Background(), ActionUnknown, got[1]); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("handle err = %v", err)
	}
}

func TestWorkSuccessSendsNothingFromDispatcher(t *testing.T) {
	d, r, c := setup(t, fakeWork{})
	d.Dispatch(context.Background(), protocol.NewDirective("A", "B", "jobs:run", "", 0))
	if got := c.decoded(t, r, "A"); len(got) != 0 {
		t.Fatalf("dispatcher answered a started work item: %+v", got)
	}
}

func TestControlPingAndRoutes(t *testing.T) {
	d, r, c := setup(t, nil)
	ping := protocol.NewDirective("A", "B", "receptor:ping", "", 0)
	d.Dispatch(context.Background(), ping)
	d.Dispatch(context.Background(), protocol.NewDirective("A", "B", "receptor:routes", "", 0))

	got := c.decoded(t, r, "A")
	if len(got) != 2 {
		t.Fatalf("responses = %d", len(got))
	}
	var p pingReply
	if err := json.Unmarshal([]byte(got[0].Payload), &p); err != nil || got[0].Code != CodeOK {
		t.Fatalf("ping reply %q: %v", got[0].Payload, err)
	}
	if p.Node != "B" || p.InitialTime != ping.Timestamp {
		t.Fatalf("ping = %+v", p)
	}
	var rt routesReply
	if err := json.Unmarshal([]byte(got[1].Payload), &rt); err != nil {
		t.Fatalf("routes reply: %v", err)
	}
	if len(rt.Edges) != 1 || rt.Table["A"] != "A" {
		t.Fatalf("routes = %+v", rt)
	}
}

func TestControlStatusAndAdvertise(t *testing.T) {
	d, r, c := setup(t, nil)
	d.Dispatch(context.Background(), protocol.NewDirective("A", "B", "receptor:status", "", 0))
	d.Dispatch(context.Background(), protocol.NewDirective("A", "B", "receptor:advertise", "", 0))
	got := c.decoded(t, r, "A")
	if len(got) != 2 {
		t.Fatalf("responses = %d", len(got))
	}
	var st statusReply
	if err := json.Unmarshal([]byte(got[0].Payload), &st); err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Node != "B" || len(st.Peers) != 1 || st.Peers[0] != "A" {
		t.Fatalf("status = %+v", st)
	}
	var adv advertiseReply
	if err := json.Unmarshal([]byte(got[1].Payload), &adv); err != nil || adv.Notified != 1 {
		t.Fatalf("advertise = %q %v", got[1].Payload, err)
	}
}
