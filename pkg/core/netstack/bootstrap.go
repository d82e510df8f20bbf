// Package netstack brings up the transports named in the config: it runs a
// listener per listen address and a redial loop per configured peer, and
// hands every established session to the peering layer.
package netstack

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"relaymesh/pkg/config"
	"relaymesh/pkg/transport"
	"relaymesh/pkg/transport/mem"
	tquic "relaymesh/pkg/transport/quic"
	ttcp "relaymesh/pkg/transport/tcp"
)

// SessionHandler owns a session until its link ends.
type SessionHandler interface {
	HandleSession(ctx context.Context, s transport.Session) error
}

type Options struct {
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffJitter  time.Duration
	// Mem is shared by every mem transport entry so in-process nodes can
	// reach each other. A fresh one is used when nil.
	Mem *mem.Transport
	// Connected reports whether a peer already has a live link. Dial loops
	// with a known peer id stay idle while it returns true.
	Connected func(peerID string) bool
}

// OptionsFromConfig converts the net section to Options.
func OptionsFromConfig(c config.NetConfig) Options {
	return Options{
		BackoffInitial: time.Duration(c.DialBackoffInitialMS) * time.Millisecond,
		BackoffMax:     time.Duration(c.DialBackoffMaxMS) * time.Millisecond,
		BackoffJitter:  time.Duration(c.DialBackoffJitterMS) * time.Millisecond,
	}
}

type Manager struct {
	activeDials     atomic.Int64
	activeListeners atomic.Int64
}

func (m *Manager) ActiveDials() int64     { return m.activeDials.Load() }
func (m *Manager) ActiveListeners() int64 { return m.activeListeners.Load() }

// StartFromConfig builds transports per config, starts listeners and dial
// loops. The returned closer stops listeners; dial loops stop with ctx.
func StartFromConfig(ctx context.Context, cfg []config.TransportConfig, h SessionHandler, opts Options) (func(), *Manager, error) {
	var closers []func()
	var mu sync.Mutex
	addCloser := func(f func()) { mu.Lock(); defer mu.Unlock(); closers = append(closers, f) }
	nm := &Manager{}
	if opts.Mem == nil {
		opts.Mem = mem.New()
	}

	for _, tc := range cfg {
		tr, err := newByKind(tc.Kind, opts.Mem)
		if err != nil {
			zap.L().Warn("transport kind not available", zap.String("kind", tc.Kind), zap.Error(err))
			continue
		}

		for _, addr := range tc.Listen {
			l, err := tr.Listen(ctx, addr)
			if err != nil {
				zap.L().Error("listen failed", zap.String("kind", tr.Kind().String()), zap.String("addr", addr), zap.Error(err))
				continue
			}
			zap.L().Info("listening", zap.String("kind", tr.Kind().String()), zap.String("addr", l.Addr().String()))
			addCloser(func() { _ = l.Close() })
			nm.activeListeners.Add(1)
			go func() {
				defer nm.activeListeners.Add(-1)
				acceptLoop(ctx, l, h)
			}()
		}

		for _, d := range tc.Dial {
			nm.activeDials.Add(1)
			go func() {
				defer nm.activeDials.Add(-1)
				dialLoop(ctx, tr, h, d.Address, d.PeerID, opts)
			}()
		}
	}

	return func() {
		mu.Lock()
		defer mu.Unlock()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nm, nil
}

// NewByKind constructs a Transport by string kind.
func NewByKind(kind string) (transport.Transport, error) { return newByKind(kind, mem.New()) }

func newByKind(kind string, shared *mem.Transport) (transport.Transport, error) {
	switch strings.ToLower(kind) {
	case "tcp":
		return ttcp.New(), nil
	case "quic", "h3", "http3":
		t, err := tquic.New()
		if err != nil {
			return nil, err
		}
		return t, nil
	case "mem", "inproc", "shared":
		return shared, nil
	default:
		return nil, ErrUnknownKind(kind)
	}
}

// ErrUnknownKind is returned for transport kinds this build does not provide.
type ErrUnknownKind string

func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }
