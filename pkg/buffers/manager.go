package buffers

import (
	"sync"

	"go.uber.org/zap"
)

// loopback delivers frames addressed to the local node straight into the
// loopback inbound buffer.
type loopback struct{ in *Inbound }

func (l loopback) Push(b []byte) error        { return l.in.Add(b) }
func (l loopback) PushControl(b []byte) error { return l.in.Add(b) }

// Manager hands out one outbound buffer per node id.
type Manager struct {
	self     string
	capacity int
	loopIn   *Inbound

	mu   sync.Mutex
	bufs map[string]*Outbound
}

func NewManager(self string, capacity int) *Manager {
	return &Manager{self: self, capacity: capacity, loopIn: NewInbound(), bufs: make(map[string]*Outbound)}
}

// BufferFor returns the buffer for node, creating it on first use.
// The local node id resolves to the loopback buffer.
func (m *Manager) BufferFor(node string) Buffer {
	if node == m.self {
		return loopback{in: m.loopIn}
	}
	return m.Outbound(node)
}

// Outbound returns the peer buffer for node, creating it on first use.
func (m *Manager) Outbound(node string) *Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bufs[node]
	if !ok || isClosed(b) {
		b = NewOutbound(node, m.capacity)
		m.bufs[node] = b
		zap.L().Debug("outbound buffer created", zap.String("node", node), zap.Int("capacity", m.capacity))
	}
	return b
}

// Remove closes and forgets the buffer for node.
func (m *Manager) Remove(node string) {
	m.mu.Lock()
	b, ok := m.bufs[node]
	delete(m.bufs, node)
	m.mu.Unlock()
	if ok {
		b.Close()
	}
}

// Loopback is the inbound buffer fed by messages the node sends itself.
func (m *Manager) Loopback() *Inbound { return m.loopIn }

func isClosed(o *Outbound) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
