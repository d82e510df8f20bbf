package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind identifies the link type.
type Kind int

const (
	KindUnknown Kind = iota
	KindQUIC
	KindTCP
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindQUIC:
		return "quic"
	case KindTCP:
		return "tcp"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// ParseKind maps a config kind string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quic":
		return KindQUIC, nil
	case "tcp":
		return KindTCP, nil
	case "mem", "inproc":
		return KindMem, nil
	default:
		return KindUnknown, fmt.Errorf("unknown transport kind %q", s)
	}
}

// PeerID is the mesh node id of the remote end once the hello is verified.
type PeerID string

// PeerInfo bundles peer identity and addressing hints.
type PeerInfo struct {
	ID       PeerID
	Addr     string // transport-dependent address string
	Outbound bool   // this node dialed the link
}

// Quality is a snapshot used to rank duplicate sessions.
type Quality struct {
	EstablishedAt time.Time
	LastSeen      time.Time
}

// Session is one link to a peer. Exactly one reader and any number of
// writers may use it concurrently.
type Session interface {
	Peer() PeerInfo
	SetPeer(PeerInfo)
	TransportKind() Kind
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// SendBytes writes one frame.
	SendBytes([]byte) error
	// RecvBytes reads the next frame.
	RecvBytes() ([]byte, error)

	Quality() Quality
	Close() error
}

// Listener accepts inbound sessions.
type Listener interface {
	// Accept blocks until an inbound session is available or ctx is done.
	Accept(ctx context.Context) (Session, error)
	Addr() net.Addr
	Close() error
}

// Transport provides dialing/listening for a specific link kind.
type Transport interface {
	Kind() Kind
	Listen(ctx context.Context, address string) (Listener, error)
	Dial(ctx context.Context, address string, peer PeerInfo) (Session, error)
}
