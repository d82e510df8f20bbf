// Package node composes the routing core, transports, controller and
// metrics into one runnable mesh node.
package node

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"relaymesh/pkg/advert"
	"relaymesh/pkg/buffers"
	"relaymesh/pkg/config"
	"relaymesh/pkg/controller"
	"relaymesh/pkg/core/netstack"
	"relaymesh/pkg/core/peering"
	"relaymesh/pkg/dispatch"
	"relaymesh/pkg/identity"
	"relaymesh/pkg/memkv"
	"relaymesh/pkg/observability"
	"relaymesh/pkg/peers"
	"relaymesh/pkg/protocol"
	"relaymesh/pkg/protocol/codec"
	"relaymesh/pkg/responses"
	"relaymesh/pkg/routing"
	"relaymesh/pkg/transport"
	"relaymesh/pkg/transport/mem"
	"relaymesh/pkg/work"
)

// Node owns every component of one mesh process.
type Node struct {
	cfg *config.Config
	key ed25519.PrivateKey
	kv  *memkv.Store
	mem *mem.Transport

	Router     *routing.Router
	Buffers    *buffers.Manager
	Advert     *advert.Protocol
	Correlator *responses.Correlator
	Dispatcher *dispatch.Dispatcher
	Work       *work.Manager
	Peers      *peers.Store
	Sessions   *transport.Manager
	Peering    *peering.Peering

	handler *peering.Handler
}

type Option func(*Node)

// WithMemTransport shares an in-process transport between nodes.
func WithMemTransport(t *mem.Transport) Option { return func(n *Node) { n.mem = t } }

// WithExecutor registers an extra work executor ahead of the built-in echo.
func WithExecutor(e work.Executor) Option { return func(n *Node) { n.Work.Register(e) } }

func New(cfg *config.Config, opts ...Option) (*Node, error) {
	key, err := identity.LoadOrGenEd25519(cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	format, err := protocol.ParseFormat(cfg.Node.InnerFormat)
	if err != nil {
		return nil, err
	}
	codecs, err := codec.Default()
	if err != nil {
		return nil, fmt.Errorf("codecs: %w", err)
	}

	n := &Node{cfg: cfg, key: key, kv: memkv.New(memkv.Options{})}
	self := cfg.NodeID
	reg := responses.NewRegistry(n.kv)
	n.Peers = peers.NewStore(n.kv)
	n.Buffers = buffers.NewManager(self, cfg.Node.BufferCapacity)
	n.Router = routing.New(routing.Options{
		Self:        self,
		Buffers:     n.Buffers,
		Responses:   reg,
		Codecs:      codecs,
		Format:      format,
		ResponseTTL: cfg.Node.ResponseTTL,
	})
	n.Advert = advert.New(n.Router, n.Buffers)
	n.Correlator = responses.NewCorrelator(reg)
	n.Work = work.NewManager(n.Router, cfg.Node.MaxConcurrentWork, cfg.Node.ErrorTTL)
	n.Dispatcher = dispatch.New(dispatch.Options{
		Router:   n.Router,
		Control:  dispatch.NewControl(n.Router, n.Advert, n.Peers),
		Work:     n.Work,
		ErrorTTL: cfg.Node.ErrorTTL,
	})
	n.handler = peering.NewHandler(n.Router, n.Dispatcher, n.Correlator)
	n.Sessions = transport.NewManager(transport.PeerID(self))

	for _, o := range opts {
		o(n)
	}
	n.Work.Register(work.Echo{})
	if n.mem == nil {
		n.mem = mem.New()
	}

	n.Peering = peering.New(peering.Options{
		Self:              self,
		Key:               key,
		HelloTTL:          cfg.Net.HelloTTL,
		Router:            n.Router,
		Buffers:           n.Buffers,
		Routes:            n.Advert,
		Handler:           n.handler,
		Sessions:          n.Sessions,
		Peers:             n.Peers,
		Poll:              cfg.Node.PollInterval,
		EgressBytesPerSec: cfg.Node.EgressBytesPerSec,
		Advertise:         func() { n.Advert.Broadcast(nil) },
		Cost:              linkCosts(cfg.Transports),
	})
	return n, nil
}

// linkCosts honours per-transport cost overrides from the config.
func linkCosts(tcs []config.TransportConfig) func(transport.Session) float64 {
	over := make(map[transport.Kind]float64)
	for _, tc := range tcs {
		if tc.Cost <= 0 {
			continue
		}
		if k, err := transport.ParseKind(tc.Kind); err == nil {
			over[k] = tc.Cost
		}
	}
	return func(s transport.Session) float64 {
		if c, ok := over[s.TransportKind()]; ok {
			return c
		}
		return transport.LinkCost(s.TransportKind())
	}
}

// ID is the node id.
func (n *Node) ID() string { return n.cfg.NodeID }

// PublicKey is the key peers verify this node's hellos against.
func (n *Node) PublicKey() ed25519.PublicKey { return n.key.Public().(ed25519.PublicKey) }

// Run starts transports, the loopback actor, the advertiser and, when
// configured, the controller and metrics endpoints. It blocks until ctx is
// done or a component fails.
func (n *Node) Run(ctx context.Context) error {
	defer n.shutdown()
	g, gctx := errgroup.WithContext(ctx)

	nsopts := netstack.OptionsFromConfig(n.cfg.Net)
	nsopts.Mem = n.mem
	nsopts.Connected = func(id string) bool { return n.Sessions.Get(transport.PeerID(id)) != nil }
	closeNS, _, err := netstack.StartFromConfig(gctx, n.cfg.Transports, n.Peering, nsopts)
	if err != nil {
		return fmt.Errorf("start transports: %w", err)
	}
	defer closeNS()

	g.Go(func() error {
		loop := peering.NewConnection(n.ID(), n.Buffers.Loopback(), n.Advert, n.handler, n.cfg.Node.PollInterval)
		return loop.Run(gctx)
	})
	g.Go(func() error {
		return advert.NewAdvertiser(n.Advert, n.cfg.Node.AdvertiseInterval).Run(gctx)
	})
	if sock := n.cfg.Controller.Socket; sock != "" {
		srv := controller.NewServer(controller.Options{
			Socket:     sock,
			Router:     n.Router,
			Correlator: n.Correlator,
			ErrorTTL:   n.cfg.Node.ErrorTTL,
		})
		g.Go(func() error { return srv.Run(gctx) })
	}
	if addr := n.cfg.Metrics.Listen; addr != "" {
		ms := observability.NewMetricsServer(addr)
		g.Go(func() error { return ms.Run(gctx) })
	}

	zap.L().Info("node running",
		zap.String("node_id", n.ID()),
		zap.Stringer("inner_format", n.Router.Format()),
		zap.Int("transports", len(n.cfg.Transports)))
	return g.Wait()
}

func (n *Node) shutdown() {
	n.Sessions.CloseAll()
	n.Work.Close()
	n.kv.Close()
	zap.L().Info("node stopped", zap.String("node_id", n.ID()))
}
