package peering

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"relaymesh/pkg/buffers"
	"relaymesh/pkg/peers"
	"relaymesh/pkg/routing"
	"relaymesh/pkg/transport"
)

// Options wires a Peering to the node's shared state.
type Options struct {
	Self     string
	Key      ed25519.PrivateKey
	HelloTTL time.Duration
	// HandshakeTimeout bounds the hello exchange.
	HandshakeTimeout time.Duration

	Router   *routing.Router
	Buffers  *buffers.Manager
	Routes   RouteHandler
	Handler  *Handler
	Sessions *transport.Manager
	Peers    *peers.Store // optional

	Poll              time.Duration
	EgressBytesPerSec int64
	// Advertise, when set, is called once a link is up to send the
	// initial route advertisement.
	Advertise func()
	// Cost overrides the link cost derived from the transport kind.
	Cost func(s transport.Session) float64
}

// Peering runs sessions on behalf of the node.
type Peering struct {
	opts Options

	mu    sync.Mutex
	pumps map[transport.Session]*pump
}

// pump drains a peer's outbound buffer onto one session. Only the canonical
// session's pump may pop; a replaced session's pump is stopped and its
// successor waits for it to finish the frame in flight.
type pump struct {
	ctx  context.Context
	stop context.CancelFunc
	done chan struct{}
	prev <-chan struct{}
}

// retainDisconnected keeps a peer's record listed for a while after the link drops.
const retainDisconnected = 5 * time.Minute

func New(opts Options) *Peering {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.HelloTTL <= 0 {
		opts.HelloTTL = 5 * time.Minute
	}
	if opts.Cost == nil {
		opts.Cost = func(s transport.Session) float64 { return transport.LinkCost(s.TransportKind()) }
	}
	return &Peering{opts: opts, pumps: make(map[transport.Session]*pump)}
}

// HandleSession owns s until the link ends. It verifies the peer's hello,
// registers the peer with the router and runs the reader, egress pump and
// connection actor. It returns when any of them stops.
func (p *Peering) HandleSession(ctx context.Context, s transport.Session) error {
	o := p.opts
	hello, err := exchangeHello(ctx, s, o.Self, o.Key, o.HelloTTL, o.HandshakeTimeout)
	if err != nil {
		zap.L().Warn("handshake failed", zap.String("remote", addrString(s)), zap.Error(err))
		_ = s.Close()
		return err
	}
	pi := s.Peer()
	pi.ID = transport.PeerID(hello.ID)
	if pi.Addr == "" {
		pi.Addr = addrString(s)
	}
	s.SetPeer(pi)
	peer := hello.ID

	accepted, replaced := o.Sessions.Add(s)
	if !accepted {
		zap.L().Info("duplicate link closed", zap.String("peer", peer), zap.Stringer("kind", s.TransportKind()))
		return nil
	}

	cost := o.Cost(s)
	o.Router.AddPeer(peer, cost)
	if o.Peers != nil {
		now := time.Now().UnixMilli()
		o.Peers.Upsert(peers.PeerMeta{
			ID:        peer,
			Addr:      pi.Addr,
			Kind:      s.TransportKind().String(),
			Alg:       hello.Alg,
			PublicKey: hello.PubKey,
			Cost:      cost,
			Connected: true,
			Since:     now,
			LastSeen:  now,
		})
	}
	defer p.teardown(peer, s)

	in := buffers.NewInbound()
	out := o.Buffers.Outbound(peer)
	var bucket *buffers.TokenBucket
	if o.EgressBytesPerSec > 0 {
		bucket = buffers.NewTokenBucket(o.EgressBytesPerSec, 0)
	}
	if o.Advertise != nil {
		o.Advertise()
	}

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(lctx)
	pu := p.startPump(gctx, s, replaced)
	defer p.releasePump(s)

	// reader
	g.Go(func() error {
		defer cancel()
		for {
			frame, err := s.RecvBytes()
			if err != nil {
				return err
			}
			if o.Peers != nil {
				o.Peers.RecordExchange(peer, uint64(len(frame)), 0, 1, 0)
			}
			_ = in.Add(frame)
		}
	})
	// egress pump; it stops without ending the session once s is replaced
	g.Go(func() error {
		defer close(pu.done)
		if pu.prev != nil {
			select {
			case <-pu.prev:
			case <-gctx.Done():
				return nil
			}
		}
		for {
			frame, ok := out.Pop(pu.ctx.Done())
			if !ok {
				return nil
			}
			if err := bucket.Wait(gctx, int64(len(frame))); err != nil {
				return nil
			}
			if err := s.SendBytes(frame); err != nil {
				cancel()
				return err
			}
			if o.Peers != nil {
				o.Peers.RecordExchange(peer, 0, uint64(len(frame)), 0, 1)
			}
		}
	})
	// actor
	g.Go(func() error {
		defer cancel()
		return NewConnection(peer, in, o.Routes, o.Handler, o.Poll).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = s.Close()
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, ErrUnknownMessageType) {
		// link errors after close are the normal way a session ends
		zap.L().Info("link closed", zap.String("peer", peer), zap.Error(err))
		return nil
	}
	return err
}

// startPump registers the pump of s and stops the pump of the session it
// replaced, if that one is still running.
func (p *Peering) startPump(ctx context.Context, s, replaced transport.Session) *pump {
	pctx, stop := context.WithCancel(ctx)
	pu := &pump{ctx: pctx, stop: stop, done: make(chan struct{})}
	p.mu.Lock()
	defer p.mu.Unlock()
	if replaced != nil {
		if old := p.pumps[replaced]; old != nil {
			old.stop()
			pu.prev = old.done
		}
	}
	p.pumps[s] = pu
	return pu
}

func (p *Peering) releasePump(s transport.Session) {
	p.mu.Lock()
	if pu := p.pumps[s]; pu != nil {
		pu.stop()
		delete(p.pumps, s)
	}
	p.mu.Unlock()
}

func (p *Peering) teardown(peer string, s transport.Session) {
	o := p.opts
	if !o.Sessions.Remove(s) {
		// a newer link to the same peer owns the routing state
		return
	}
	o.Router.RemovePeer(peer)
	o.Buffers.Remove(peer)
	if o.Peers != nil {
		o.Peers.MarkDisconnected(peer, retainDisconnected)
	}
}

func addrString(s transport.Session) string {
	if a := s.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
