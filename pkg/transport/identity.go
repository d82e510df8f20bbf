package transport

import (
	"fmt"
	"net"
	"strings"
)

// TempPeerID names a session before its hello has been verified.
func TempPeerID(kind Kind, addr net.Addr) PeerID {
	if addr == nil {
		return PeerID(fmt.Sprintf("temp:%s:unknown", kind))
	}
	return PeerID(fmt.Sprintf("temp:%s:%s", kind, addr.String()))
}

// IsTemp reports whether id was produced by TempPeerID.
func IsTemp(id PeerID) bool { return strings.HasPrefix(string(id), "temp:") }
