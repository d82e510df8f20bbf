package netstack

import (
	"context"

	"go.uber.org/zap"

	"relaymesh/pkg/transport"
)

func acceptLoop(ctx context.Context, l transport.Listener, h SessionHandler) {
	for {
		s, err := l.Accept(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			zap.L().Warn("accept failed", zap.String("addr", l.Addr().String()), zap.Error(err))
			return
		}
		zap.L().Info("inbound session", zap.String("peer", string(s.Peer().ID)), zap.Stringer("kind", s.TransportKind()), zap.String("raddr", s.RemoteAddr().String()))
		go func() {
			if err := h.HandleSession(ctx, s); err != nil {
				zap.L().Warn("inbound session ended", zap.String("raddr", s.RemoteAddr().String()), zap.Error(err))
			}
		}()
	}
}
