package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"relaymesh/pkg/advert"
	"relaymesh/pkg/peers"
	"relaymesh/pkg/protocol"
	"relaymesh/pkg/routing"
)

// Control answers directives in the control namespace.
type Control struct {
	router  *routing.Router
	advert  *advert.Protocol
	peers   *peers.Store
	started time.Time
	now     func() time.Time
}

// NewControl builds a control handler. adv and ps may be nil; the actions
// needing them then fail.
func NewControl(r *routing.Router, adv *advert.Protocol, ps *peers.Store) *Control {
	return &Control{router: r, advert: adv, peers: ps, started: time.Now(), now: time.Now}
}

type pingReply struct {
	Node         string `json:"node"`
	InitialTime  string `json:"initial_time"`
	ResponseTime string `json:"response_time"`
}

type routesReply struct {
	Edges []protocol.WireEdge `json:"edges"`
	Table map[string]string   `json:"table"`
}

type statusReply struct {
	Node             string           `json:"node"`
	UptimeSeconds    float64          `json:"uptime_seconds"`
	Peers            []string         `json:"peers"`
	PeerMeta         []peers.PeerMeta `json:"peer_meta,omitempty"`
	Edges            int              `json:"edges"`
	Destinations     int              `json:"destinations"`
	PendingResponses int              `json:"pending_responses"`
}

type advertiseReply struct {
	Notified int `json:"notified"`
}

// Handle runs action and returns the JSON reply payload.
func (c *Control) Handle(ctx context.Context, action ControlAction, inner *protocol.InnerEnvelope) (string, error) {
	var reply any
	switch action {
	case ActionPing:
		reply = pingReply{
			Node:         c.router.Self(),
			InitialTime:  inner.Timestamp,
			ResponseTime: c.now().UTC().Format(time.RFC3339Nano),
		}
	case ActionRoutes:
		edges := c.router.Edges()
		out := routesReply{Edges: make([]protocol.WireEdge, len(edges)), Table: c.router.Table()}
		for i, e := range edges {
			out.Edges[i] = protocol.WireEdge{A: e.A, B: e.B, Cost: e.Cost}
		}
		reply = out
	case ActionStatus:
		st := statusReply{
			Node:          c.router.Self(),
			UptimeSeconds: c.now().Sub(c.started).Seconds(),
			Peers:         c.router.Peers(),
			Edges:         len(c.router.Edges()),
			Destinations:  len(c.router.Table()),
		}
		if c.peers != nil {
			st.PeerMeta = c.peers.List()
		}
		if reg := c.router.Responses(); reg != nil {
			st.PendingResponses = len(reg.IDs())
		}
		reply = st
	case ActionAdvertise:
		if c.advert == nil {
			return "", errAdvertDisabled
		}
		reply = advertiseReply{Notified: c.advert.Broadcast(nil)}
	default:
		return "", fmt.Errorf("%w %s", ErrUnknownAction, action)
	}
	b, err := json.Marshal(reply)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
