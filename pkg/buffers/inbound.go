package buffers

import (
	"sync"

	"go.uber.org/zap"

	"relaymesh/pkg/protocol"
)

// Inbound collects decoded frames for one connection actor.
type Inbound struct {
	mu   sync.Mutex
	q    []protocol.Message
	wake chan struct{}
}

func NewInbound() *Inbound { return &Inbound{wake: make(chan struct{}, 1)} }

// Add parses frame and queues it. Malformed frames are logged and dropped.
func (in *Inbound) Add(frame []byte) error {
	m, err := protocol.ParseMessage(frame)
	if err != nil {
		zap.L().Warn("inbound drop", zap.Int("bytes", len(frame)), zap.Error(err))
		return err
	}
	in.Put(m)
	return nil
}

// Put queues an already classified message.
func (in *Inbound) Put(m protocol.Message) {
	in.mu.Lock()
	in.q = append(in.q, m)
	in.mu.Unlock()
	select {
	case in.wake <- struct{}{}:
	default:
	}
}

// Drain returns every queued message in arrival order. It never blocks.
func (in *Inbound) Drain() []protocol.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.q) == 0 {
		return nil
	}
	out := in.q
	in.q = nil
	return out
}

// Wake fires after Add when the actor may have been idle.
func (in *Inbound) Wake() <-chan struct{} { return in.wake }
