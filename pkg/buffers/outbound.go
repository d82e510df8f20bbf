package buffers

import (
	"sync"
)

// Class orders outbound frames: control frames (route adverts) leave before data.
type Class int

const (
	ClassControl Class = iota
	ClassData
	numClasses
)

// Buffer is the per-destination outbound handle. Safe for concurrent use.
type Buffer interface {
	Push(b []byte) error
	PushControl(b []byte) error
}

// Outbound is a bounded two-class FIFO drained by one link pump.
type Outbound struct {
	node     string
	capacity int

	mu     sync.Mutex
	q      [numClasses][][]byte
	n      int
	closed bool
	notify chan struct{}
}

func NewOutbound(node string, capacity int) *Outbound {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Outbound{node: node, capacity: capacity, notify: make(chan struct{}, 1)}
}

func (o *Outbound) Push(b []byte) error        { return o.PushClass(ClassData, b) }
func (o *Outbound) PushControl(b []byte) error { return o.PushClass(ClassControl, b) }

// PushClass enqueues b. A full or closed buffer rejects the frame.
func (o *Outbound) PushClass(c Class, b []byte) error {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return &WriteError{Node: o.node, Err: ErrBufferClosed}
	case o.n >= o.capacity:
		o.mu.Unlock()
		return &WriteError{Node: o.node, Err: ErrBufferFull}
	}
	o.q[c] = append(o.q[c], b)
	o.n++
	o.mu.Unlock()
	select {
	case o.notify <- struct{}{}:
	default:
	}
	return nil
}

func (o *Outbound) tryPop() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for c := range o.q {
		if len(o.q[c]) > 0 {
			b := o.q[c][0]
			o.q[c][0] = nil
			o.q[c] = o.q[c][1:]
			o.n--
			return b, true
		}
	}
	return nil, false
}

// Pop blocks until a frame is available, stop is closed, or the buffer is
// closed and empty.
func (o *Outbound) Pop(stop <-chan struct{}) ([]byte, bool) {
	for {
		select {
		case <-stop:
			return nil, false
		default:
		}
		if b, ok := o.tryPop(); ok {
			return b, true
		}
		o.mu.Lock()
		closed := o.closed
		o.mu.Unlock()
		if closed {
			return nil, false
		}
		select {
		case <-stop:
			return nil, false
		case <-o.notify:
		}
	}
}

// Close rejects further pushes and wakes a blocked Pop. Queued frames can
// still be drained.
func (o *Outbound) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *Outbound) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}
