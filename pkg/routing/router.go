// Package routing owns the node-wide edge graph, the forwarding table
// derived from it, and message delivery toward next hops.
package routing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"relaymesh/pkg/buffers"
	"relaymesh/pkg/observability"
	"relaymesh/pkg/protocol"
	"relaymesh/pkg/protocol/codec"
	"relaymesh/pkg/responses"
)

var ErrNoRoute = &noRouteErr{}

type noRouteErr struct{}

func (e *noRouteErr) Error() string { return "no route" }

// BufferProvider returns the outbound buffer for a node id.
type BufferProvider interface {
	BufferFor(node string) buffers.Buffer
}

// Options configures a Router.
type Options struct {
	Self      string
	Buffers   BufferProvider
	Responses *responses.Registry
	Codecs    *codec.Registry
	Format    protocol.Format
	// ResponseTTL bounds how long a request expecting responses stays registered.
	ResponseTTL time.Duration
}

// Router is the shared routing context. One lock guards the graph, the peer
// set and the forwarding table so a rebuild always sees a consistent edge set.
type Router struct {
	self    string
	bufs    BufferProvider
	resp    *responses.Registry
	codecs  *codec.Registry
	format  protocol.Format
	respTTL time.Duration

	mu    sync.RWMutex
	graph *Graph
	peers map[string]struct{}
	table Table
}

func New(opts Options) *Router {
	if opts.Codecs == nil {
		opts.Codecs = codec.NewRegistry()
	}
	if opts.Format == protocol.FormatUnknown {
		opts.Format = protocol.FormatJSON
	}
	if opts.ResponseTTL <= 0 {
		opts.ResponseTTL = 5 * time.Minute
	}
	return &Router{
		self:    opts.Self,
		bufs:    opts.Buffers,
		resp:    opts.Responses,
		codecs:  opts.Codecs,
		format:  opts.Format,
		respTTL: opts.ResponseTTL,
		graph:   NewGraph(),
		peers:   make(map[string]struct{}),
		table:   Table{},
	}
}

func (r *Router) Self() string                   { return r.self }
func (r *Router) Codecs() *codec.Registry        { return r.codecs }
func (r *Router) Format() protocol.Format        { return r.format }
func (r *Router) Responses() *responses.Registry { return r.resp }

// ---- edge set ----

func (r *Router) FindEdge(a, b string) (Edge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph.Find(a, b)
}

// RemoveNode forgets every edge touching node and rebuilds the table.
func (r *Router) RemoveNode(node string) {
	r.Apply(func(g *Graph) { g.RemoveNode(node) })
}

// Edges returns the lowest-cost edge of every known pair.
func (r *Router) Edges() []Edge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph.Edges()
}

// EdgeCosts returns every cost registered for the pair.
func (r *Router) EdgeCosts(a, b string) []float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph.Costs(a, b)
}

// Apply runs fn against the graph and rebuilds the forwarding table before
// releasing the lock. No NextHop call can observe the graph change without
// the matching table.
func (r *Router) Apply(fn func(g *Graph)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.graph)
	r.rebuildLocked()
}

func (r *Router) rebuildLocked() {
	edges := r.graph.Edges()
	usable := edges[:0:0]
	for _, e := range edges {
		// an advertised edge to self only counts while the link is up
		switch {
		case e.A == r.self:
			if _, ok := r.peers[e.B]; !ok {
				continue
			}
		case e.B == r.self:
			if _, ok := r.peers[e.A]; !ok {
				continue
			}
		}
		usable = append(usable, e)
	}
	r.table = BuildTable(r.self, usable)
	observability.DefaultMetrics.UpdateTopology(len(r.peers), r.graph.Len())
	zap.L().Debug("forwarding table rebuilt", zap.Int("edges", len(usable)), zap.Int("destinations", len(r.table)))
}

// Table returns a copy of the forwarding table.
func (r *Router) Table() Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(Table, len(r.table))
	for k, v := range r.table {
		out[k] = v
	}
	return out
}

// NextHop resolves node. local is true when node is this node; otherwise hop
// is the peer to relay through, or ErrNoRoute when node is unreachable.
func (r *Router) NextHop(node string) (hop string, local bool, err error) {
	if node == r.self {
		return "", true, nil
	}
	r.mu.RLock()
	hop, ok := r.table[node]
	r.mu.RUnlock()
	if !ok {
		return "", false, ErrNoRoute
	}
	return hop, false, nil
}

// ---- peers ----

// AddPeer marks peer as directly connected with a link of the given cost.
func (r *Router) AddPeer(peer string, cost float64) {
	r.Apply(func(g *Graph) {
		r.peers[peer] = struct{}{}
		g.Register(r.self, peer, cost)
	})
	zap.L().Info("peer up", zap.String("peer", peer), zap.Float64("cost", cost))
}

// RemovePeer drops peer and its direct edge.
func (r *Router) RemovePeer(peer string) {
	r.Apply(func(g *Graph) {
		delete(r.peers, peer)
		g.Remove(r.self, peer)
	})
	zap.L().Info("peer down", zap.String("peer", peer))
}

// Peers returns the directly connected peers in sorted order.
func (r *Router) Peers() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.peers))
	for p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// ---- delivery ----

// Forward relays an encoded outer envelope to hop unchanged.
func (r *Router) Forward(frame []byte, hop string) error {
	if err := r.bufs.BufferFor(hop).Push(frame); err != nil {
		if buffers.IsWriteError(err) {
			observability.DefaultMetrics.BufferWriteFailures.Inc()
		}
		return fmt.Errorf("forward to %s: %w", hop, err)
	}
	observability.DefaultMetrics.MessagesRelayed.Inc()
	return nil
}

// Send encodes inner, wraps it for inner.Recipient and routes it. When
// expectResponse is set the request is registered so its responses can be
// correlated.
func (r *Router) Send(inner *protocol.InnerEnvelope, expectResponse bool) error {
	outer, err := protocol.NewOuter(inner, r.self, r.codecs, r.format)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	frame, err := outer.Marshal()
	if err != nil {
		return fmt.Errorf("encode outer: %w", err)
	}
	hop, local, err := r.NextHop(outer.Recipient)
	if err != nil {
		return fmt.Errorf("send to %s: %w", outer.Recipient, err)
	}
	if local {
		hop = r.self
	}
	if expectResponse && r.resp != nil {
		r.resp.Register(inner.MessageID, responses.Entry{Recipient: inner.Recipient, Directive: inner.Directive}, r.respTTL)
	}
	if err := r.bufs.BufferFor(hop).Push(frame); err != nil {
		if buffers.IsWriteError(err) {
			observability.DefaultMetrics.BufferWriteFailures.Inc()
		}
		if expectResponse && r.resp != nil {
			r.resp.Remove(inner.MessageID)
		}
		return fmt.Errorf("send to %s via %s: %w", outer.Recipient, hop, err)
	}
	zap.L().Debug("sent",
		zap.String("recipient", outer.Recipient),
		zap.String("via", hop),
		zap.String("message_id", inner.MessageID),
		zap.String("type", inner.MessageType))
	return nil
}

// IsNoRoute reports whether err means the destination is unreachable.
func IsNoRoute(err error) bool { return errors.Is(err, ErrNoRoute) }
