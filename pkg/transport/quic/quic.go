package quic

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"relaymesh/pkg/transport"
)

const alpn = "relaymesh"

// Transport runs each session over one bidirectional QUIC stream, opened by
// the dialer and accepted by the listener. Peer identity is established by
// the signed hello on top, so certificates are ephemeral and unverified.
type Transport struct {
	serverTLS *tls.Config
	clientTLS *tls.Config
	conf      *quicgo.Config
}

func New() (*Transport, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	return &Transport{
		serverTLS: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{alpn},
			MinVersion:   tls.VersionTLS13,
		},
		clientTLS: &tls.Config{
			InsecureSkipVerify: true, // identity is verified by the hello
			NextProtos:         []string{alpn},
			MinVersion:         tls.VersionTLS13,
		},
		conf: &quicgo.Config{
			MaxIdleTimeout:  3 * time.Minute,
			KeepAlivePeriod: 20 * time.Second,
		},
	}, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := quicgo.ListenAddr(address, t.serverTLS, t.conf)
	if err != nil {
		return nil, err
	}
	ql := &listener{l: l, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
	go ql.acceptLoop(ctx)
	go func() { <-ctx.Done(); _ = ql.Close() }()
	return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer transport.PeerInfo) (transport.Session, error) {
	c, err := quicgo.DialAddr(ctx, address, t.clientTLS, t.conf)
	if err != nil {
		return nil, err
	}
	st, err := c.OpenStreamSync(ctx)
	if err != nil {
		_ = c.CloseWithError(0, "open stream")
		return nil, err
	}
	peer.Outbound = true
	if peer.Addr == "" {
		peer.Addr = address
	}
	return newSession(c, st, peer), nil
}

type listener struct {
	l       *quicgo.Listener
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
		return nil, errors.New("quic listener closed")
	case s := <-l.newCh:
		return s, nil
	}
}

func (l *listener) Close() error {
	l.once.Do(func() { close(l.closeCh) })
	return l.l.Close()
}

func (l *listener) acceptLoop(ctx context.Context) {
	for {
		c, err := l.l.Accept(ctx)
		if err != nil {
			return
		}
		go func(c *quicgo.Conn) {
			actx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			st, err := c.AcceptStream(actx)
			if err != nil {
				_ = c.CloseWithError(0, "no stream")
				return
			}
			peer := transport.PeerInfo{ID: transport.TempPeerID(transport.KindQUIC, c.RemoteAddr()), Addr: c.RemoteAddr().String()}
			s := newSession(c, st, peer)
			select {
			case l.newCh <- s:
			case <-l.closeCh:
				_ = s.Close()
			}
		}(c)
	}
}

type session struct {
	*transport.FrameConn
	mu            sync.RWMutex
	peer          transport.PeerInfo
	c             *quicgo.Conn
	st            *quicgo.Stream
	establishedAt time.Time
}

func newSession(c *quicgo.Conn, st *quicgo.Stream, peer transport.PeerInfo) *session {
	return &session{FrameConn: transport.NewFrameConn(st), peer: peer, c: c, st: st, establishedAt: time.Now()}
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

func (s *session) TransportKind() transport.Kind { return transport.KindQUIC }
func (s *session) LocalAddr() net.Addr           { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr          { return s.c.RemoteAddr() }

func (s *session) Close() error {
	_ = s.st.Close()
	return s.c.CloseWithError(0, "close")
}

func (s *session) Quality() transport.Quality {
	return transport.Quality{EstablishedAt: s.establishedAt, LastSeen: s.LastSeen()}
}

// selfSignedCert generates a short-lived self-signed certificate for the listener.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
