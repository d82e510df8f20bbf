package transport

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func TestFrameConnRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	fa, fb := NewFrameConn(a), NewFrameConn(b)

	payloads := [][]byte{[]byte("one"), {}, bytes.Repeat([]byte{7}, 70000)}
	go func() {
		for _, p := range payloads {
			_ = fa.SendBytes(p)
		}
	}()
	for i, want := range payloads {
		got, err := fb.RecvBytes()
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d mismatch: %d bytes", i, len(got))
		}
	}
	if fb.LastSeen().IsZero() {
		t.Fatalf("last seen not updated")
	}
}

func TestFrameConnRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	f := NewFrameConn(&buf)
	if _, err := f.RecvBytes(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected oversize error, got %v", err)
	}
}

func TestParseKindAndCost(t *testing.T) {
	k, err := ParseKind(" TCP ")
	if err != nil || k != KindTCP {
		t.Fatalf("ParseKind tcp = %v %v", k, err)
	}
	if _, err := ParseKind("carrier-pigeon"); err == nil {
		t.Fatalf("expected error")
	}
	if !(LinkCost(KindMem) < LinkCost(KindQUIC) && LinkCost(KindQUIC) < LinkCost(KindTCP)) {
		t.Fatalf("unexpected cost order")
	}
}

type fakeSession struct {
	mu     sync.Mutex
	peer   PeerInfo
	kind   Kind
	est    time.Time
	closed bool
}

func (f *fakeSession) Peer() PeerInfo             { return f.peer }
func (f *fakeSession) SetPeer(p PeerInfo)         { f.peer = p }
func (f *fakeSession) TransportKind() Kind        { return f.kind }
func (f *fakeSession) LocalAddr() net.Addr        { return nil }
func (f *fakeSession) RemoteAddr() net.Addr       { return nil }
func (f *fakeSession) SendBytes([]byte) error     { return nil }
func (f *fakeSession) RecvBytes() ([]byte, error) { return nil, errors.New("eof") }
func (f *fakeSession) Quality() Quality           { return Quality{EstablishedAt: f.est} }
func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestManagerKeepsLowerInitiator(t *testing.T) {
	// node "b" sees two links from "a": one it dialed, one a dialed.
	m := NewManager("b")
	m.grace = time.Millisecond
	dialedByB := &fakeSession{peer: PeerInfo{ID: "a", Outbound: true}, kind: KindTCP, est: time.Now()}
	dialedByA := &fakeSession{peer: PeerInfo{ID: "a"}, kind: KindTCP, est: time.Now().Add(-time.Second)}

	if ok, _ := m.Add(dialedByB); !ok {
		t.Fatalf("first session must be accepted")
	}
	ok, replaced := m.Add(dialedByA)
	if !ok || replaced != dialedByB {
		t.Fatalf("link initiated by a should win: ok=%v replaced=%v", ok, replaced)
	}
	if m.Get("a") != dialedByA {
		t.Fatalf("canonical mismatch")
	}
	deadline := time.Now().Add(time.Second)
	for !dialedByB.isClosed() {
		if time.Now().After(deadline) {
			t.Fatalf("replaced session not closed")
		}
		time.Sleep(time.Millisecond)
	}
	if m.Remove(dialedByB) {
		t.Fatalf("non-canonical remove must report false")
	}
	if !m.Remove(dialedByA) || m.Get("a") != nil {
		t.Fatalf("canonical remove failed")
	}
}

func TestManagerPrefersBetterKind(t *testing.T) {
	m := NewManager("z")
	tcp := &fakeSession{peer: PeerInfo{ID: "p"}, kind: KindTCP}
	mem := &fakeSession{peer: PeerInfo{ID: "p"}, kind: KindMem}
	m.Add(mem)
	if ok, _ := m.Add(tcp); ok || !tcp.isClosed() {
		t.Fatalf("worse kind should be rejected and closed")
	}
	m.CloseAll()
	if !mem.isClosed() || len(m.List()) != 0 {
		t.Fatalf("close all failed")
	}
}
