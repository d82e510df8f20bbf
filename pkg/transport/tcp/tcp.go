package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"relaymesh/pkg/transport"
)

// Transport carries u32 LE length-prefixed frames over TCP.
type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	tl := &listener{l: l, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
	go tl.acceptLoop()
	go func() { <-ctx.Done(); _ = tl.Close() }()
	return tl, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer transport.PeerInfo) (transport.Session, error) {
	d := &net.Dialer{KeepAlive: 30 * time.Second}
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	peer.Outbound = true
	if peer.Addr == "" {
		peer.Addr = address
	}
	return newSession(c, peer), nil
}

type listener struct {
	l       net.Listener
	newCh   chan *session
	closeCh chan struct{}
	once    sync.Once
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("tcp listener closed")
	case s := <-l.newCh:
		return s, nil
	}
}

func (l *listener) Close() error {
	l.once.Do(func() { close(l.closeCh) })
	return l.l.Close()
}

func (l *listener) acceptLoop() {
	for {
		c, err := l.l.Accept()
		if err != nil {
			return
		}
		peer := transport.PeerInfo{ID: transport.TempPeerID(transport.KindTCP, c.RemoteAddr()), Addr: c.RemoteAddr().String()}
		s := newSession(c, peer)
		select {
		case l.newCh <- s:
		case <-l.closeCh:
			_ = s.Close()
			return
		}
	}
}

type session struct {
	*transport.FrameConn
	mu            sync.RWMutex
	peer          transport.PeerInfo
	c             net.Conn
	establishedAt time.Time
}

func newSession(c net.Conn, peer transport.PeerInfo) *session {
	return &session{FrameConn: transport.NewFrameConn(c), peer: peer, c: c, establishedAt: time.Now()}
}

func (s *session) Peer() transport.PeerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer
}

func (s *session) SetPeer(pi transport.PeerInfo) {
	s.mu.Lock()
	s.peer = pi
	s.mu.Unlock()
}

func (s *session) TransportKind() transport.Kind { return transport.KindTCP }
func (s *session) LocalAddr() net.Addr           { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr          { return s.c.RemoteAddr() }
func (s *session) Close() error                  { return s.c.Close() }

func (s *session) Quality() transport.Quality {
	return transport.Quality{EstablishedAt: s.establishedAt, LastSeen: s.LastSeen()}
}
