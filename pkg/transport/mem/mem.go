package mem

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"relaymesh/pkg/transport"
)

// Transport is an in-process transport over net.Pipe. Listeners are scoped to
// one Transport value, so tests can share it between several nodes.
type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, errors.New("mem: listener already exists")
	}
	l := &listener{name: name, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
	t.listeners[name] = l
	go func() {
		<-ctx.Done()
		_ = l.Close()
		t.mu.Lock()
		delete(t.listeners, name)
		t.mu.Unlock()
	}()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string, peer transport.PeerInfo) (transport.Session, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, errors.New("mem: no such listener")
	}
	c1, c2 := net.Pipe()
	srv := newSession(c1, transport.PeerInfo{ID: transport.TempPeerID(transport.KindMem, memAddr(name)), Addr: name})
	peer.Outbound = true
	peer.Addr = name
	cli := newSession(c2, peer)
	select {
	case l.newCh <- srv:
	case <-ctx.Done():
		_ = srv.Close()
		_ = cli.Close()
		return nil, ctx.Err()
	case <-l.closeCh:
		_ = srv.Close()
		_ = cli.Close()
		return nil, errors.New("mem listener closed")
	}
	return cli, nil
}

type listener struct {
	name    string
	newCh   chan *session
	closeCh chan struct{}
	once    sync.Once
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("mem listener closed")
	case s := <-l.newCh:
		return s, nil
	}
}

func (l *listener) Close() error {
	l.once.Do(func() { close(l.closeCh) })
	return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

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

func (s *session) TransportKind() transport.Kind { return transport.KindMem }
func (s *session) LocalAddr() net.Addr           { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr          { return s.c.RemoteAddr() }
func (s *session) Close() error                  { return s.c.Close() }

func (s *session) Quality() transport.Quality {
	return transport.Quality{EstablishedAt: s.establishedAt, LastSeen: s.LastSeen()}
}
