// Package transport defines the link abstraction peers talk over and a
// session manager that keeps one canonical session per peer.
//
//   - Transport: dials/listens for Sessions of one Kind (TCP, QUIC, in-memory)
//   - Session: a bidirectional link to a peer carrying length-prefixed frames
//   - Manager: deduplicates concurrent inbound/outbound links to the same peer
package transport
