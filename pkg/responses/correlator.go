package responses

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"relaymesh/pkg/observability"
	"relaymesh/pkg/protocol"
)

// Listener receives correlated responses, e.g. a controller connection.
type Listener interface {
	EmitResponse(resp *protocol.InnerEnvelope) error
}

// Correlator matches inbound responses against the registry.
type Correlator struct {
	reg *Registry

	mu        sync.RWMutex
	listeners []Listener
}

func NewCorrelator(reg *Registry) *Correlator { return &Correlator{reg: reg} }

func (c *Correlator) Registry() *Registry { return c.reg }

// Attach adds l after the listeners already attached.
func (c *Correlator) Attach(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

func (c *Correlator) Detach(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.listeners {
		if x == l {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Handle delivers resp to every listener in attach order and returns how many
// accepted it. Orphaned responses are logged and dropped.
func (c *Correlator) Handle(resp *protocol.InnerEnvelope) int {
	req, ok := c.reg.Lookup(resp.InResponseTo)
	if !ok {
		observability.DefaultMetrics.OrphanedResponses.Inc()
		zap.L().Info("orphaned response",
			zap.String("in_response_to", resp.InResponseTo),
			zap.String("sender", resp.Sender),
			zap.String("message_id", resp.MessageID))
		return 0
	}
	c.mu.RLock()
	ls := append([]Listener(nil), c.listeners...)
	c.mu.RUnlock()

	delivered := 0
	for _, l := range ls {
		if err := l.EmitResponse(resp); err != nil {
			zap.L().Warn("emit response", zap.String("in_response_to", resp.InResponseTo), zap.Error(err))
			continue
		}
		delivered++
	}
	zap.L().Debug("response delivered",
		zap.String("in_response_to", resp.InResponseTo),
		zap.String("directive", req.Directive),
		zap.Int("code", resp.Code),
		zap.Int64("rtt_ms", time.Now().UnixMilli()-req.SentAt),
		zap.Int("listeners", delivered))
	return delivered
}
