package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"
)

// MaxFrameSize bounds a single frame.
const MaxFrameSize = 1 << 24

var ErrFrameTooLarge = errors.New("invalid frame size")

// FrameConn implements SendBytes/RecvBytes as u32 little-endian
// length-prefixed frames over any byte stream.
type FrameConn struct {
	wmu sync.Mutex
	br  *bufio.Reader
	bw  *bufio.Writer

	lmu      sync.Mutex
	lastSeen time.Time
}

func NewFrameConn(rw io.ReadWriter) *FrameConn {
	return &FrameConn{br: bufio.NewReader(rw), bw: bufio.NewWriter(rw)}
}

func (f *FrameConn) SendBytes(b []byte) error {
	if len(b) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	f.wmu.Lock()
	defer f.wmu.Unlock()
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := f.bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := f.bw.Write(b); err != nil {
		return err
	}
	if err := f.bw.Flush(); err != nil {
		return err
	}
	f.touch()
	return nil
}

func (f *FrameConn) RecvBytes() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(f.br, lenbuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenbuf[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.br, buf); err != nil {
		return nil, err
	}
	f.touch()
	return buf, nil
}

func (f *FrameConn) touch() {
	f.lmu.Lock()
	f.lastSeen = time.Now()
	f.lmu.Unlock()
}

func (f *FrameConn) LastSeen() time.Time {
	f.lmu.Lock()
	defer f.lmu.Unlock()
	return f.lastSeen
}
