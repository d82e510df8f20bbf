package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"relaymesh/pkg/observability"
	"relaymesh/pkg/protocol"
	"relaymesh/pkg/routing"
)

var errAdvertDisabled = errors.New("advertisements are not available on this node")

// Worker hands a work directive to the work subsystem. Results travel back
// as responses sent by the worker itself.
type Worker interface {
	Handle(ctx context.Context, inner *protocol.InnerEnvelope) error
}

const (
	CodeOK    = 0
	CodeError = 1
)

type Options struct {
	Router  *routing.Router
	Control *Control
	Work    Worker
	// ErrorTTL is the ttl in seconds of error responses.
	ErrorTTL int
}

type Dispatcher struct {
	router   *routing.Router
	control  *Control
	work     Worker
	errorTTL int
}

func New(opts Options) *Dispatcher {
	if opts.ErrorTTL <= 0 {
		opts.ErrorTTL = 15
	}
	return &Dispatcher{router: opts.Router, control: opts.Control, work: opts.Work, errorTTL: opts.ErrorTTL}
}

// Dispatch processes a directive addressed to this node. It never returns an
// error: a failure is answered with exactly one code 1 response.
func (d *Dispatcher) Dispatch(ctx context.Context, inner *protocol.InnerEnvelope) {
	if err := d.dispatch(ctx, inner); err != nil {
		d.respondError(inner, err)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, inner *protocol.InnerEnvelope) error {
	dir, err := ParseDirective(inner.Directive)
	if err != nil {
		return err
	}
	zap.L().Debug("dispatch",
		zap.String("directive", dir.String()),
		zap.String("kind", dir.Kind().String()),
		zap.String("sender", inner.Sender),
		zap.String("message_id", inner.MessageID))

	if dir.Kind() == KindControl {
		if d.control == nil {
			return errors.New("control directives are disabled")
		}
		action, err := ParseControlAction(dir.Action)
		if err != nil {
			return err
		}
		payload, err := d.control.Handle(ctx, action, inner)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		if err := d.router.Send(inner.MakeResponse(d.router.Self(), CodeOK, payload, 0), false); err != nil {
			zap.L().Warn("control reply", zap.String("to", inner.Sender), zap.Error(err))
		}
		return nil
	}

	if d.work == nil {
		return fmt.Errorf("no work subsystem for %s", dir)
	}
	return d.work.Handle(ctx, inner)
}

func (d *Dispatcher) respondError(inner *protocol.InnerEnvelope, cause error) {
	observability.DefaultMetrics.ErrorResponses.Inc()
	zap.L().Info("directive failed",
		zap.String("directive", inner.Directive),
		zap.String("sender", inner.Sender),
		zap.String("message_id", inner.MessageID),
		zap.Error(cause))
	resp := inner.MakeResponse(d.router.Self(), CodeError, cause.Error(), d.errorTTL)
	if err := d.router.Send(resp, false); err != nil {
		zap.L().Warn("error response undeliverable", zap.String("to", inner.Sender), zap.Error(err))
	}
}
