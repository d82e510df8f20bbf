// Package handshake implements the signed HI frame exchanged as the first
// frame on every peer link.
package handshake

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"relaymesh/pkg/crypto/sign"
	"relaymesh/pkg/protocol"
)

const AlgEd25519 = "ed25519"

var (
	ErrNotHello = errors.New("first frame is not a hello")
	ErrExpired  = errors.New("hello expired")
	ErrBadSig   = errors.New("hello signature invalid")
)

// Hello announces the sender's node id. ExpireTime is unix seconds.
type Hello struct {
	Cmd        string  `json:"cmd"`
	ID         string  `json:"id"`
	ExpireTime float64 `json:"expire_time"`
	Alg        string  `json:"alg"`
	PubKey     []byte  `json:"pubkey"`
	Nonce      []byte  `json:"nonce"`
	Sig        []byte  `json:"sig"`
}

// Build constructs and signs a hello valid for ttl.
func Build(nodeID string, priv ed25519.PrivateKey, ttl time.Duration) (Hello, error) {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return Hello{}, err
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return Hello{}, sign.ErrBadKey
	}
	h := Hello{
		Cmd:        protocol.CmdHello,
		ID:         nodeID,
		ExpireTime: float64(time.Now().Add(ttl).UnixMilli()) / 1000,
		Alg:        AlgEd25519,
		PubKey:     append([]byte(nil), pub...),
		Nonce:      nonce,
	}
	sig, err := sign.SignEd25519(priv, h.transcript())
	if err != nil {
		return Hello{}, err
	}
	h.Sig = sig
	return h, nil
}

func (h Hello) transcript() []byte {
	return sign.HelloTranscript(h.Alg, h.ID, h.PubKey, h.Nonce, h.ExpireTime)
}

func (h Hello) Marshal() ([]byte, error) { return json.Marshal(h) }

// Parse decodes a hello frame.
func Parse(b []byte) (Hello, error) {
	var h Hello
	if err := json.Unmarshal(b, &h); err != nil {
		return Hello{}, fmt.Errorf("%w: %v", ErrNotHello, err)
	}
	if h.Cmd != protocol.CmdHello {
		return Hello{}, ErrNotHello
	}
	if h.ID == "" {
		return Hello{}, fmt.Errorf("%w: missing id", ErrNotHello)
	}
	return h, nil
}

// Verify checks the signature and that the hello has not expired at now.
func Verify(h Hello, now time.Time) error {
	if h.Alg != AlgEd25519 {
		return fmt.Errorf("unsupported alg: %s", h.Alg)
	}
	if len(h.PubKey) != ed25519.PublicKeySize || len(h.Sig) != ed25519.SignatureSize {
		return ErrBadSig
	}
	if float64(now.UnixMilli())/1000 > h.ExpireTime {
		return ErrExpired
	}
	if !sign.VerifyEd25519(ed25519.PublicKey(h.PubKey), h.transcript(), h.Sig) {
		return ErrBadSig
	}
	return nil
}
