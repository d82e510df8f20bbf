package peering

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"relaymesh/pkg/observability"
	"relaymesh/pkg/protocol"
	"relaymesh/pkg/routing"
)

// Handler applies the forwarding decision to application frames.
type Handler struct {
	router    *routing.Router
	dispatch  Dispatcher
	correlate Correlator
	now       func() time.Time
}

func NewHandler(r *routing.Router, d Dispatcher, c Correlator) *Handler {
	return &Handler{router: r, dispatch: d, correlate: c, now: time.Now}
}

// HandleMessage delivers msg locally or relays it toward its recipient.
// Only ErrUnknownMessageType is meant to end the connection; other errors
// concern this message alone.
func (h *Handler) HandleMessage(ctx context.Context, msg protocol.Message) error {
	if msg.Cmd != "" {
		// a hello repeated after the handshake, or a command from a newer peer
		zap.L().Debug("ignoring command frame", zap.String("cmd", msg.Cmd))
		return nil
	}
	observability.DefaultMetrics.MessagesIngested.Inc()

	outer, err := protocol.DecodeOuter(msg.Raw)
	if err != nil {
		observability.DefaultMetrics.MessagesDropped.WithLabelValues(observability.DropMalformed).Inc()
		return err
	}
	hop, local, err := h.router.NextHop(outer.Recipient)
	switch {
	case err != nil:
		observability.DefaultMetrics.MessagesDropped.WithLabelValues(observability.DropNoRoute).Inc()
		zap.L().Warn("dropping message",
			zap.String("recipient", outer.Recipient),
			zap.String("sender", outer.Sender),
			zap.String("frame_id", outer.FrameID),
			zap.Error(err))
		return nil
	case !local:
		zap.L().Debug("relay", zap.String("recipient", outer.Recipient), zap.String("via", hop), zap.String("frame_id", outer.FrameID))
		return h.router.Forward(msg.Raw, hop)
	}

	inner, err := outer.DecodeInner(h.router.Codecs())
	if err != nil {
		observability.DefaultMetrics.MessagesDropped.WithLabelValues(observability.DropMalformed).Inc()
		return err
	}
	if inner.MessageType != protocol.TypeDirective && inner.MessageType != protocol.TypeResponse {
		return fmt.Errorf("%w: %q from %s", ErrUnknownMessageType, inner.MessageType, inner.Sender)
	}
	if inner.Expired(h.now()) {
		observability.DefaultMetrics.MessagesDropped.WithLabelValues(observability.DropExpired).Inc()
		zap.L().Info("expired message dropped",
			zap.String("message_id", inner.MessageID),
			zap.String("sender", inner.Sender),
			zap.String("timestamp", inner.Timestamp),
			zap.Int("ttl", inner.TTL))
		return nil
	}

	observability.DefaultMetrics.MessagesLocal.WithLabelValues(inner.MessageType).Inc()
	if inner.MessageType == protocol.TypeDirective {
		h.dispatch.Dispatch(ctx, inner)
	} else {
		h.correlate.Handle(inner)
	}
	return nil
}
