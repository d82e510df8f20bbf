package responses

import (
	"errors"
	"testing"
	"time"

	"relaymesh/pkg/memkv"
	"relaymesh/pkg/protocol"
)

type recorder struct {
	name string
	log  *[]string
	err  error
}

func (r *recorder) EmitResponse(resp *protocol.InnerEnvelope) error {
	*r.log = append(*r.log, r.name+":"+resp.InResponseTo)
	return r.err
}

func newCorrelator(t *testing.T) *Correlator {
	t.Helper()
	kv := memkv.New(memkv.Options{})
	t.Cleanup(kv.Close)
	return NewCorrelator(NewRegistry(kv))
}

func TestRegistryLifecycle(t *testing.T) {
	c := newCorrelator(t)
	reg := c.Registry()
	reg.Register("m1", Entry{Recipient: "b", Directive: "receptor:ping"}, time.Minute)
	e, ok := reg.Lookup("m1")
	if !ok || e.MessageID != "m1" || e.Recipient != "b" || e.SentAt == 0 {
		t.Fatalf("lookup mismatch: %+v %v", e, ok)
	}
	if ids := reg.IDs(); len(ids) != 1 || ids[0] != "m1" {
		t.Fatalf("ids mismatch: %v", ids)
	}
	if !reg.Remove("m1") {
		t.Fatalf("remove failed")
	}
	if _, ok := reg.Lookup("m1"); ok {
		t.Fatalf("entry still present after remove")
	}
	if _, ok := reg.Lookup(""); ok {
		t.Fatalf("empty id never matches")
	}
}

func TestCorrelatorDeliversInAttachOrder(t *testing.T) {
	c := newCorrelator(t)
	var log []string
	a := &recorder{name: "a", log: &log}
	b := &recorder{name: "b", log: &log, err: errors.New("gone")}
	d := &recorder{name: "d", log: &log}
	c.Attach(a)
	c.Attach(b)
	c.Attach(d)
	c.Registry().Register("req", Entry{}, time.Minute)

	n := c.Handle(&protocol.InnerEnvelope{MessageType: protocol.TypeResponse, InResponseTo: "req"})
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	want := []string{"a:req", "b:req", "d:req"}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("order mismatch: %v", log)
		}
	}

	c.Detach(b)
	log = log[:0]
	c.Handle(&protocol.InnerEnvelope{InResponseTo: "req"})
	if len(log) != 2 || log[0] != "a:req" || log[1] != "d:req" {
		t.Fatalf("detach mismatch: %v", log)
	}
}

func TestCorrelatorOrphanNotifiesNobody(t *testing.T) {
	c := newCorrelator(t)
	var log []string
	c.Attach(&recorder{name: "a", log: &log})
	if n := c.Handle(&protocol.InnerEnvelope{InResponseTo: "unknown"}); n != 0 || len(log) != 0 {
		t.Fatalf("orphan notified %d listeners: %v", n, log)
	}
}
