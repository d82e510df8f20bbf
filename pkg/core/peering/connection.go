package peering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"relaymesh/pkg/buffers"
	"relaymesh/pkg/protocol"
)

// Connection is the actor draining one link's inbound buffer. Every
// Connection shares the node's router through its handlers.
type Connection struct {
	peer    string
	in      *buffers.Inbound
	routes  RouteHandler
	handler *Handler
	poll    time.Duration
}

func NewConnection(peer string, in *buffers.Inbound, routes RouteHandler, h *Handler, poll time.Duration) *Connection {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Connection{peer: peer, in: in, routes: routes, handler: h, poll: poll}
}

// Run processes messages until ctx is done, which returns nil, or a message
// of unknown type arrives, which returns the wrapped ErrUnknownMessageType.
func (c *Connection) Run(ctx context.Context) error {
	t := time.NewTicker(c.poll)
	defer t.Stop()
	for {
		for _, m := range c.in.Drain() {
			if err := c.process(ctx, m); err != nil {
				if errors.Is(err, ErrUnknownMessageType) {
					zap.L().Warn("connection terminated", zap.String("peer", c.peer), zap.Error(err))
					return fmt.Errorf("connection %s: %w", c.peer, err)
				}
				zap.L().Warn("message failed", zap.String("peer", c.peer), zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		case <-c.in.Wake():
		}
	}
}

func (c *Connection) process(ctx context.Context, m protocol.Message) error {
	if m.IsRoute() {
		c.routes.Handle(m.Route)
		return nil
	}
	return c.handler.HandleMessage(ctx, m)
}
