package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"time"

	"relaymesh/pkg/protocol"
)

// Client is a connection to a node's controller socket.
type Client struct {
	c  net.Conn
	sc *bufio.Scanner
}

func Dial(ctx context.Context, socket string) (*Client, error) {
	c, err := dial(ctx, socket)
	if err != nil {
		return nil, err
	}
	return &Client{c: c, sc: newScanner(bufio.NewReader(c))}, nil
}

func (c *Client) Send(req Request) error {
	_, err := c.c.Write(req.encode())
	return err
}

// Recv blocks for the next response frame.
func (c *Client) Recv() (*protocol.InnerEnvelope, error) {
	if !c.sc.Scan() {
		if err := c.sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	var resp protocol.InnerEnvelope
	if err := json.Unmarshal(c.sc.Bytes(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Close() error { return c.c.Close() }

// SetDeadline bounds pending Send and Recv calls.
func (c *Client) SetDeadline(t time.Time) error { return c.c.SetDeadline(t) }
