// Package controller exposes the node to local tools over a unix socket (a
// named pipe on Windows). A tool writes requests of the form
// "recipient\ndirective\npayload" terminated by Delim and reads back every
// response the node correlates, JSON encoded and terminated by Delim.
package controller

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
)

// Delim terminates every frame in both directions.
const Delim = "\x1b[K"

const maxFrame = 1 << 20

var errBadRequest = errors.New("request must be recipient, directive and payload separated by newlines")

// Request is one controller command.
type Request struct {
	Recipient string
	Directive string
	Payload   string
}

func (r Request) encode() []byte {
	return []byte(r.Recipient + "\n" + r.Directive + "\n" + r.Payload + Delim)
}

func parseRequest(b []byte) (Request, error) {
	parts := strings.SplitN(string(b), "\n", 3)
	if len(parts) < 2 {
		return Request{}, errBadRequest
	}
	r := Request{Recipient: strings.TrimSpace(parts[0]), Directive: strings.TrimSpace(parts[1])}
	if len(parts) == 3 {
		r.Payload = parts[2]
	}
	if r.Recipient == "" || r.Directive == "" {
		return Request{}, errBadRequest
	}
	return r, nil
}

func newScanner(r *bufio.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxFrame)
	sc.Split(splitDelim)
	return sc
}

func splitDelim(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.Index(data, []byte(Delim)); i >= 0 {
		return i + len(Delim), data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
