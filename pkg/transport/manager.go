package transport

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager keeps at most one canonical Session per peer. When both ends dial
// each other at once, both sides must keep the same link, so equal-rank
// sessions are ordered by which end initiated them.
type Manager struct {
	self  PeerID
	grace time.Duration

	mu    sync.RWMutex
	peers map[PeerID]Session
}

func NewManager(self PeerID) *Manager {
	return &Manager{self: self, grace: 500 * time.Millisecond, peers: make(map[PeerID]Session)}
}

// Add registers s under its verified peer id. It returns accepted=false when
// an existing session wins (s is closed), and the replaced session, if any,
// which is closed after a short grace period.
func (m *Manager) Add(s Session) (accepted bool, replaced Session) {
	pid := s.Peer().ID
	m.mu.Lock()
	cur := m.peers[pid]
	if cur == nil {
		m.peers[pid] = s
		m.mu.Unlock()
		return true, nil
	}
	if !m.better(s, cur) {
		m.mu.Unlock()
		zap.L().Debug("duplicate session rejected", zap.String("peer", string(pid)), zap.Stringer("kind", s.TransportKind()))
		_ = s.Close()
		return false, nil
	}
	m.peers[pid] = s
	m.mu.Unlock()
	zap.L().Debug("session replaced", zap.String("peer", string(pid)), zap.Stringer("kind", s.TransportKind()))
	time.AfterFunc(m.grace, func() { _ = cur.Close() })
	return true, cur
}

// Get returns the canonical session for id, or nil.
func (m *Manager) Get(id PeerID) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peers[id]
}

// Remove forgets s if it is still canonical for its peer and reports whether it was.
func (m *Manager) Remove(s Session) bool {
	pid := s.Peer().ID
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peers[pid] != s {
		return false
	}
	delete(m.peers, pid)
	return true
}

// CloseAll closes every canonical session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ss := make([]Session, 0, len(m.peers))
	for _, s := range m.peers {
		ss = append(ss, s)
	}
	m.peers = make(map[PeerID]Session)
	m.mu.Unlock()
	for _, s := range ss {
		_ = s.Close()
	}
}

// List returns the peers with a canonical session.
func (m *Manager) List() []PeerID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PeerID, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Preference order across kinds; higher is better.
func baseRank(k Kind) int {
	switch k {
	case KindMem:
		return 120
	case KindQUIC:
		return 100
	case KindTCP:
		return 90
	default:
		return 0
	}
}

// better decides whether a should replace b as canonical.
func (m *Manager) better(a, b Session) bool {
	ra, rb := baseRank(a.TransportKind()), baseRank(b.TransportKind())
	if ra != rb {
		return ra > rb
	}
	// Keep the link initiated by the lower node id; both ends agree on it.
	ia, ib := m.initiator(a), m.initiator(b)
	if ia != ib {
		return ia < ib
	}
	return a.Quality().EstablishedAt.After(b.Quality().EstablishedAt)
}

func (m *Manager) initiator(s Session) PeerID {
	if s.Peer().Outbound {
		return m.self
	}
	return s.Peer().ID
}
