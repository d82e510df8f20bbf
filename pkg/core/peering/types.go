// Package peering runs live peer links: the hello exchange, the per-link
// reader, egress pump and connection actor, and the forwarding decision
// applied to every application frame.
package peering

import (
	"context"
	"errors"

	"relaymesh/pkg/protocol"
)

// ErrUnknownMessageType ends a connection: the peer speaks a message type
// this node cannot interpret.
var ErrUnknownMessageType = errors.New("unknown message type")

// RouteHandler merges a route advertisement.
type RouteHandler interface {
	Handle(adv *protocol.RouteAdvertisement)
}

// Dispatcher consumes directives addressed to this node.
type Dispatcher interface {
	Dispatch(ctx context.Context, inner *protocol.InnerEnvelope)
}

// Correlator consumes responses addressed to this node.
type Correlator interface {
	Handle(resp *protocol.InnerEnvelope) int
}
