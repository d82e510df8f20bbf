package work

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"relaymesh/pkg/observability"
	"relaymesh/pkg/protocol"
)

// Sender submits an envelope for routing.
type Sender interface {
	Self() string
	Send(inner *protocol.InnerEnvelope, expectResponse bool) error
}

// Manager picks an executor per directive and bounds concurrent work.
type Manager struct {
	send     Sender
	replyTTL int
	sem      *semaphore.Weighted

	mu    sync.RWMutex
	execs []Executor

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager running at most maxConcurrent directives.
// Result responses carry replyTTL.
func NewManager(send Sender, maxConcurrent int64, replyTTL int) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{send: send, replyTTL: replyTTL, sem: semaphore.NewWeighted(maxConcurrent), ctx: ctx, cancel: cancel}
}

// Register appends e; earlier executors win when several accept a namespace.
func (m *Manager) Register(e Executor) {
	m.mu.Lock()
	m.execs = append(m.execs, e)
	m.mu.Unlock()
}

func (m *Manager) executorFor(ns string) Executor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.execs {
		if e.CanHandle(ns) {
			return e
		}
	}
	return nil
}

// Handle starts the directive in the background. Errors returned here mean
// the work never started.
func (m *Manager) Handle(ctx context.Context, inner *protocol.InnerEnvelope) error {
	ns, _, _ := strings.Cut(inner.Directive, ":")
	exec := m.executorFor(ns)
	if exec == nil {
		return fmt.Errorf("%w: %s", ErrNoExecutor, inner.Directive)
	}
	if !m.sem.TryAcquire(1) {
		return ErrBusy
	}
	results, err := exec.Execute(m.ctx, inner)
	if err != nil {
		m.sem.Release(1)
		return fmt.Errorf("execute %s: %w", inner.Directive, err)
	}
	observability.DefaultMetrics.WorkInFlight.Inc()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.sem.Release(1)
		defer observability.DefaultMetrics.WorkInFlight.Dec()
		n := 0
		for res := range results {
			n++
			resp := inner.MakeResponse(m.send.Self(), res.Code, res.Payload, m.replyTTL)
			if err := m.send.Send(resp, false); err != nil {
				zap.L().Warn("work result undeliverable",
					zap.String("directive", inner.Directive),
					zap.String("to", inner.Sender),
					zap.Error(err))
			}
		}
		zap.L().Debug("work done", zap.String("directive", inner.Directive), zap.String("message_id", inner.MessageID), zap.Int("results", n))
	}()
	return nil
}

// Close cancels running work and waits for it to drain.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
