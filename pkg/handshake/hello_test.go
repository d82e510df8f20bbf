package handshake

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func TestHelloRoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	h, err := Build("node-a", priv, time.Minute)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, err := h.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Parse(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.ID != "node-a" {
		t.Fatalf("id = %q", got.ID)
	}
	if err := Verify(got, time.Now()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := Verify(got, time.Now().Add(2*time.Minute)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	got.ID = "node-evil"
	if err := Verify(got, time.Now()); !errors.Is(err, ErrBadSig) {
		t.Fatalf("expected bad signature, got %v", err)
	}
}

func TestParseRejectsOtherFrames(t *testing.T) {
	for _, raw := range []string{`{"cmd":"ROUTE","id":"a"}`, `{"cmd":"HI"}`, `nope`} {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrNotHello) {
			t.Fatalf("%s: expected ErrNotHello, got %v", raw, err)
		}
	}
}
