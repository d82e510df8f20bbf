// Package advert implements route advertisement gossip: merging advertised
// edges into the shared graph and flooding the known edge set to peers that
// have not yet seen the advertisement.
package advert

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"relaymesh/pkg/buffers"
	"relaymesh/pkg/observability"
	"relaymesh/pkg/protocol"
	"relaymesh/pkg/routing"
)

// Protocol handles inbound advertisements and emits outbound ones.
type Protocol struct {
	router *routing.Router
	bufs   routing.BufferProvider
}

func New(router *routing.Router, bufs routing.BufferProvider) *Protocol {
	return &Protocol{router: router, bufs: bufs}
}

// Handle merges adv into the graph and rebuilds the forwarding table under
// one lock, then re-broadcasts to peers outside adv.Seen.
//
// An advertised edge cheaper than the known one replaces it. Any other
// advertised edge is registered next to what is known.
func (p *Protocol) Handle(adv *protocol.RouteAdvertisement) {
	observability.DefaultMetrics.AdvertsHandled.Inc()
	merged := 0
	p.router.Apply(func(g *routing.Graph) {
		for _, e := range adv.Edges {
			if e.A == "" || e.B == "" || e.A == e.B || e.Cost < 0 || math.IsNaN(e.Cost) || math.IsInf(e.Cost, 0) {
				zap.L().Warn("route advert: skip edge", zap.String("from", adv.ID), zap.String("a", e.A), zap.String("b", e.B), zap.Float64("cost", e.Cost))
				continue
			}
			if cur, ok := g.Find(e.A, e.B); ok && cur.Cost > e.Cost {
				g.Update(e.A, e.B, e.Cost)
			} else {
				g.Register(e.A, e.B, e.Cost)
			}
			merged++
		}
	})
	zap.L().Debug("route advert merged", zap.String("from", adv.ID), zap.Int("edges", merged), zap.Strings("seen", adv.Seen))
	p.Broadcast(adv.Seen)
}

// Broadcast sends the full known edge set to every connected peer not in
// seen. The carried seen set is seen plus the notified peers plus this node.
// Delivery is best-effort per peer; it returns how many peers were queued.
func (p *Protocol) Broadcast(seen []string) int {
	self := p.router.Self()
	already := make(map[string]struct{}, len(seen)+1)
	for _, s := range seen {
		already[s] = struct{}{}
	}
	var dests []string
	for _, peer := range p.router.Peers() {
		if _, ok := already[peer]; !ok && peer != self {
			dests = append(dests, peer)
		}
	}
	if len(dests) == 0 {
		return 0
	}

	carried := make(map[string]struct{}, len(already)+len(dests)+1)
	for s := range already {
		carried[s] = struct{}{}
	}
	for _, d := range dests {
		carried[d] = struct{}{}
	}
	carried[self] = struct{}{}
	seenOut := make([]string, 0, len(carried))
	for s := range carried {
		seenOut = append(seenOut, s)
	}
	sort.Strings(seenOut)

	edges := p.router.Edges()
	msg := &protocol.RouteAdvertisement{ID: self, Edges: make([]protocol.WireEdge, len(edges)), Seen: seenOut}
	for i, e := range edges {
		msg.Edges[i] = protocol.WireEdge{A: e.A, B: e.B, Cost: e.Cost}
	}
	frame, err := msg.Marshal()
	if err != nil {
		zap.L().Error("route advert encode", zap.Error(err))
		return 0
	}

	sent := 0
	for _, d := range dests {
		err := p.bufs.BufferFor(d).PushControl(frame)
		switch {
		case err == nil:
			sent++
			observability.DefaultMetrics.AdvertSends.Inc()
		case buffers.IsWriteError(err):
			observability.DefaultMetrics.BufferWriteFailures.Inc()
			zap.L().Warn("route advert: buffer write failed", zap.String("peer", d), zap.Error(err))
		default:
			zap.L().Error("route advert: send failed", zap.String("peer", d), zap.Error(err))
		}
	}
	zap.L().Debug("route advert sent", zap.Int("peers", sent), zap.Int("edges", len(edges)))
	return sent
}
