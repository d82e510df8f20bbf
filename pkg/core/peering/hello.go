package peering

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"relaymesh/pkg/handshake"
	"relaymesh/pkg/transport"
)

var errSelfLink = errors.New("peer announced our own node id")

// exchangeHello sends our hello and verifies the peer's, which must be the
// first frame on the link. Sending runs concurrently with the read because
// some links (net.Pipe) do not buffer writes.
func exchangeHello(ctx context.Context, s transport.Session, self string, key ed25519.PrivateKey, ttl, timeout time.Duration) (handshake.Hello, error) {
	ours, err := handshake.Build(self, key, ttl)
	if err != nil {
		return handshake.Hello{}, fmt.Errorf("build hello: %w", err)
	}
	b, err := ours.Marshal()
	if err != nil {
		return handshake.Hello{}, err
	}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(hctx, func() { _ = s.Close() })

	sent := make(chan error, 1)
	go func() { sent <- s.SendBytes(b) }()

	first, rerr := s.RecvBytes()
	serr := <-sent
	if !stop() {
		return handshake.Hello{}, fmt.Errorf("hello: %w", hctx.Err())
	}
	if rerr != nil {
		return handshake.Hello{}, fmt.Errorf("recv hello: %w", rerr)
	}
	if serr != nil {
		return handshake.Hello{}, fmt.Errorf("send hello: %w", serr)
	}

	theirs, err := handshake.Parse(first)
	if err != nil {
		return handshake.Hello{}, err
	}
	if err := handshake.Verify(theirs, time.Now()); err != nil {
		return handshake.Hello{}, fmt.Errorf("hello from %s: %w", theirs.ID, err)
	}
	if theirs.ID == self {
		return handshake.Hello{}, errSelfLink
	}
	zap.L().Info("hello accepted",
		zap.String("old_id", string(s.Peer().ID)),
		zap.String("peer", theirs.ID),
		zap.Stringer("kind", s.TransportKind()))
	return theirs, nil
}
