package buffers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOutboundControlFirst(t *testing.T) {
	o := NewOutbound("b", 8)
	_ = o.Push([]byte("d1"))
	_ = o.PushControl([]byte("c1"))
	_ = o.Push([]byte("d2"))
	stop := make(chan struct{})
	want := []string{"c1", "d1", "d2"}
	for _, w := range want {
		b, ok := o.Pop(stop)
		if !ok || string(b) != w {
			t.Fatalf("pop = %q %v, want %q", b, ok, w)
		}
	}
}

func TestOutboundFullAndClosed(t *testing.T) {
	o := NewOutbound("b", 1)
	if err := o.Push([]byte("x")); err != nil {
		t.Fatalf("push: %v", err)
	}
	err := o.Push([]byte("y"))
	var we *WriteError
	if !errors.As(err, &we) || !errors.Is(err, ErrBufferFull) || we.Node != "b" {
		t.Fatalf("expected full WriteError, got %v", err)
	}
	o.Close()
	if err := o.Push([]byte("z")); !errors.Is(err, ErrBufferClosed) || !IsWriteError(err) {
		t.Fatalf("expected closed, got %v", err)
	}
	// queued frame is still drained, then Pop reports closed
	if b, ok := o.Pop(nil); !ok || string(b) != "x" {
		t.Fatalf("drain after close: %q %v", b, ok)
	}
	if _, ok := o.Pop(nil); ok {
		t.Fatalf("expected closed pop")
	}
}

func TestOutboundPopBlocksUntilPush(t *testing.T) {
	o := NewOutbound("b", 4)
	got := make(chan string, 1)
	go func() {
		b, _ := o.Pop(make(chan struct{}))
		got <- string(b)
	}()
	time.Sleep(20 * time.Millisecond)
	_ = o.Push([]byte("late"))
	select {
	case s := <-got:
		if s != "late" {
			t.Fatalf("got %q", s)
		}
	case <-time.After(time.Second):
		t.Fatalf("pop did not wake")
	}
}

func TestOutboundPopStops(t *testing.T) {
	o := NewOutbound("b", 4)
	stop := make(chan struct{})
	close(stop)
	if _, ok := o.Pop(stop); ok {
		t.Fatalf("expected stop")
	}
	_ = o.Push([]byte("queued"))
	if _, ok := o.Pop(stop); ok {
		t.Fatalf("stopped Pop took a queued frame")
	}
	if o.Len() != 1 {
		t.Fatalf("len = %d, want 1", o.Len())
	}
}

func TestInboundDrain(t *testing.T) {
	in := NewInbound()
	if out := in.Drain(); len(out) != 0 {
		t.Fatalf("expected empty drain")
	}
	_ = in.Add([]byte(`{"cmd":"ROUTE","id":"a","edges":[],"seen":[]}`))
	_ = in.Add([]byte(`{"recipient":"b","inner":"AQ=="}`))
	if err := in.Add([]byte("garbage")); err == nil {
		t.Fatalf("expected parse error")
	}
	select {
	case <-in.Wake():
	default:
		t.Fatalf("expected wake signal")
	}
	out := in.Drain()
	if len(out) != 2 || !out[0].IsRoute() || out[1].IsRoute() {
		t.Fatalf("unexpected drain: %+v", out)
	}
	if len(in.Drain()) != 0 {
		t.Fatalf("drain should empty the buffer")
	}
}

func TestManagerLoopbackAndReuse(t *testing.T) {
	m := NewManager("self", 4)
	if err := m.BufferFor("self").Push([]byte(`{"recipient":"self","inner":"AQ=="}`)); err != nil {
		t.Fatalf("loopback push: %v", err)
	}
	if len(m.Loopback().Drain()) != 1 {
		t.Fatalf("loopback frame not delivered")
	}
	a := m.Outbound("peer")
	if m.BufferFor("peer").(*Outbound) != a {
		t.Fatalf("expected buffer reuse")
	}
	m.Remove("peer")
	if err := a.Push([]byte("x")); !errors.Is(err, ErrBufferClosed) {
		t.Fatalf("removed buffer should be closed: %v", err)
	}
	if m.Outbound("peer") == a {
		t.Fatalf("expected fresh buffer after remove")
	}
}

func TestTokenBucketWait(t *testing.T) {
	b := NewTokenBucket(1000, 100)
	if ok, _ := b.Allow(100); !ok {
		t.Fatalf("full bucket should allow")
	}
	if ok, wait := b.Allow(50); ok || wait <= 0 {
		t.Fatalf("empty bucket should ask to wait, got %v %v", ok, wait)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Wait(ctx, 10); err != nil {
		t.Fatalf("wait: %v", err)
	}
	var nilBucket *TokenBucket
	if err := nilBucket.Wait(ctx, 1<<20); err != nil {
		t.Fatalf("nil bucket wait: %v", err)
	}
}
