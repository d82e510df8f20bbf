package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"relaymesh/pkg/protocol"
	"relaymesh/pkg/responses"
	"relaymesh/pkg/routing"
)

type Options struct {
	Socket     string
	Router     *routing.Router
	Correlator *responses.Correlator
	// ErrorTTL is stamped on locally generated error responses.
	ErrorTTL int
}

// Server accepts controller connections.
type Server struct {
	opts Options
}

func NewServer(opts Options) *Server {
	if opts.ErrorTTL <= 0 {
		opts.ErrorTTL = 15
	}
	return &Server{opts: opts}
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	l, err := listen(s.opts.Socket)
	if err != nil {
		return err
	}
	zap.L().Info("controller listening", zap.String("socket", s.opts.Socket))
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		c, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serve(ctx, c)
		}()
	}
}

// conn is one attached tool. It receives every correlated response.
type conn struct {
	c  net.Conn
	mu sync.Mutex
}

func (cc *conn) EmitResponse(resp *protocol.InnerEnvelope) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	_, err = cc.c.Write(append(b, Delim...))
	return err
}

func (s *Server) serve(ctx context.Context, c net.Conn) {
	cc := &conn{c: c}
	s.opts.Correlator.Attach(cc)
	defer s.opts.Correlator.Detach(cc)
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer c.Close()

	zap.L().Debug("controller connected")
	sc := newScanner(bufio.NewReader(c))
	for sc.Scan() {
		s.handle(cc, sc.Bytes())
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		zap.L().Warn("controller read", zap.Error(err))
	}
}

func (s *Server) handle(cc *conn, frame []byte) {
	r := s.opts.Router
	req, err := parseRequest(frame)
	if err != nil {
		s.fail(cc, protocol.NewDirective(r.Self(), r.Self(), "", "", 0), err)
		return
	}
	inner := protocol.NewDirective(r.Self(), req.Recipient, req.Directive, req.Payload, 0)
	if err := r.Send(inner, true); err != nil {
		s.fail(cc, inner, err)
		return
	}
	zap.L().Info("controller request sent",
		zap.String("recipient", req.Recipient),
		zap.String("directive", req.Directive),
		zap.String("message_id", inner.MessageID))
}

// fail answers the requesting tool directly; the request never entered the
// mesh, so nothing is registered to correlate against.
func (s *Server) fail(cc *conn, inner *protocol.InnerEnvelope, cause error) {
	resp := inner.MakeResponse(s.opts.Router.Self(), 1, cause.Error(), s.opts.ErrorTTL)
	if err := cc.EmitResponse(resp); err != nil {
		zap.L().Warn("controller write", zap.Error(err))
	}
}
