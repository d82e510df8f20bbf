package netstack

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"relaymesh/pkg/transport"
)

// stableLink is how long a session must last before the dial backoff resets.
const stableLink = 10 * time.Second

func dialLoop(ctx context.Context, tr transport.Transport, h SessionHandler, address, peerID string, opts Options) {
	pid := transport.PeerID(peerID)
	if pid == "" {
		pid = transport.PeerID("temp:" + tr.Kind().String() + ":" + address)
	}
	peer := transport.PeerInfo{ID: pid, Addr: address}

	initial := opts.BackoffInitial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxBackoff := opts.BackoffMax
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	backoff := initial
	grow := func() {
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if peerID != "" && opts.Connected != nil && opts.Connected(peerID) {
			if !sleep(ctx, withJitter(maxBackoff, opts.BackoffJitter)) {
				return
			}
			continue
		}
		sess, err := tr.Dial(ctx, address, peer)
		if err != nil {
			zap.L().Warn("dial failed", zap.String("kind", tr.Kind().String()), zap.String("addr", address), zap.Error(err))
			if !sleep(ctx, withJitter(backoff, opts.BackoffJitter)) {
				return
			}
			grow()
			continue
		}
		zap.L().Info("dialed", zap.String("kind", tr.Kind().String()), zap.String("addr", address))

		started := time.Now()
		if err := h.HandleSession(ctx, sess); err != nil {
			zap.L().Warn("outbound session ended", zap.String("addr", address), zap.Error(err))
		}
		if time.Since(started) >= stableLink {
			backoff = initial
		} else {
			grow()
		}
		if !sleep(ctx, withJitter(backoff, opts.BackoffJitter)) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func withJitter(d, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return d
	}
	return d + rand.N(jitter)
}
