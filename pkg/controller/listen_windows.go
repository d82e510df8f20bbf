//go:build windows

package controller

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

func listen(pipeName string) (net.Listener, error) { return winio.ListenPipe(pipeName, nil) }

func dial(ctx context.Context, pipeName string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, pipeName)
}
