// Package work runs non-control directives on pluggable executors and sends
// their results back to the requester as responses.
package work

import (
	"context"
	"errors"

	"relaymesh/pkg/protocol"
)

var (
	ErrNoExecutor = errors.New("no executor for directive")
	ErrBusy       = errors.New("work capacity exhausted")
)

// Result is one reply produced by an executor. A directive may yield any
// number of results; each becomes its own response.
type Result struct {
	Code    int
	Payload string
}

// Executor executes directives of the namespaces it accepts.
type Executor interface {
	// CanHandle reports whether the executor serves namespace.
	CanHandle(namespace string) bool

	// Execute starts the work and returns a channel of results that is
	// closed when the work is done.
	Execute(ctx context.Context, inner *protocol.InnerEnvelope) (<-chan Result, error)
}

// Echo answers with the request payload. It serves a single namespace.
type Echo struct{ Namespace string }

func (e Echo) CanHandle(ns string) bool {
	if e.Namespace == "" {
		return ns == "echo"
	}
	return ns == e.Namespace
}

func (e Echo) Execute(ctx context.Context, inner *protocol.InnerEnvelope) (<-chan Result, error) {
	out := make(chan Result, 1)
	out <- Result{Payload: inner.Payload}
	close(out)
	return out, nil
}
