// Package identity loads the node's ed25519 signing key.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"relaymesh/pkg/config"
)

// LoadOrGenEd25519 loads the key from identity.private_key, then from
// identity.private_key_file. When neither yields a key a new one is
// generated and, if a key file is configured, written there.
func LoadOrGenEd25519(c config.IdentityConfig) (ed25519.PrivateKey, error) {
	if alg := strings.ToLower(strings.TrimSpace(c.Alg)); alg != "" && alg != "ed25519" {
		return nil, fmt.Errorf("unsupported identity.alg %q", c.Alg)
	}
	if s := strings.TrimSpace(c.PrivateKey); s != "" {
		pk, err := decodeKey([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("identity.private_key: %w", err)
		}
		return pk, nil
	}
	path := strings.TrimSpace(c.PrivateKeyFile)
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			pk, derr := decodeKey(b)
			if derr != nil {
				return nil, fmt.Errorf("identity.private_key_file: %w", derr)
			}
			return pk, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("identity.private_key_file: %w", err)
		}
	}

	_, pk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	pub := base64.RawURLEncoding.EncodeToString(pk.Public().(ed25519.PublicKey))
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(base64.RawURLEncoding.EncodeToString(pk)), 0o600); err != nil {
			return nil, fmt.Errorf("write identity key: %w", err)
		}
		zap.L().Info("generated ed25519 identity", zap.String("file", path), zap.String("pub_b64", pub))
	} else {
		zap.L().Info("generated ephemeral ed25519 identity", zap.String("pub_b64", pub))
	}
	return pk, nil
}

// decodeKey accepts base64url (no padding) text or raw key bytes.
func decodeKey(b []byte) (ed25519.PrivateKey, error) {
	txt := strings.TrimSpace(string(b))
	if db, err := base64.RawURLEncoding.DecodeString(txt); err == nil && len(db) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(db), nil
	}
	if len(b) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(b), nil
	}
	return nil, errors.New("not an ed25519 private key")
}
