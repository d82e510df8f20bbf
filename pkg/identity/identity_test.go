package identity

import (
	"bytes"
	"path/filepath"
	"testing"

	"relaymesh/pkg/config"
)

func TestGenerateAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.key")
	first, err := LoadOrGenEd25519(config.IdentityConfig{Alg: "ed25519", PrivateKeyFile: path})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := LoadOrGenEd25519(config.IdentityConfig{PrivateKeyFile: path})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("persisted key not reloaded")
	}
}

func TestRejectsBadInput(t *testing.T) {
	if _, err := LoadOrGenEd25519(config.IdentityConfig{Alg: "rsa"}); err == nil {
		t.Fatalf("expected unsupported alg error")
	}
	if _, err := LoadOrGenEd25519(config.IdentityConfig{PrivateKey: "short"}); err == nil {
		t.Fatalf("expected decode error")
	}
}
