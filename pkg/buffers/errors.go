package buffers

import (
	"errors"
	"fmt"
)

var (
	ErrBufferFull   = errors.New("buffer full")
	ErrBufferClosed = errors.New("buffer closed")
)

// WriteError is returned by Push when a frame could not be queued for Node.
type WriteError struct {
	Node string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("buffer write to %s: %v", e.Node, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// IsWriteError reports whether err is a buffer-level delivery failure.
func IsWriteError(err error) bool {
	return errors.Is(err, ErrBufferFull) || errors.Is(err, ErrBufferClosed)
}
