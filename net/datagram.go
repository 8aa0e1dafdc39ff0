package net

import (
	"context"
	"net"
	"time"

	"go.uber.org/atomic"
)

// Datagram is a received packet and its source. Data is backed by a buffer
// borrowed from the receiver; Release hands it back.
type Datagram struct {
	Data     []byte
	Addr     *net.UDPAddr
	release  func()
	released atomic.Bool
}

// NewDatagram wraps data. release may be nil.
func NewDatagram(data []byte, addr *net.UDPAddr, release func()) *Datagram {
	return &Datagram{Data: data, Addr: addr, release: release}
}

// Release returns the buffer to its owner. Only the first call has effect.
func (d *Datagram) Release() {
	if !d.released.CompareAndSwap(false, true) {
		return
	}
	d.Data = nil
	if d.release != nil {
		d.release()
	}
}

// Inbound is the bounded queue between the socket reader and the dispatcher.
type Inbound struct {
	c chan *Datagram
}

func NewInbound(size int) *Inbound {
	if size < 1 {
		size = 1
	}
	return &Inbound{c: make(chan *Datagram, size)}
}

// Push enqueues d without blocking. It returns false when the queue is full;
// the caller keeps ownership of d then.
func (q *Inbound) Push(d *Datagram) bool {
	select {
	case q.c <- d:
		return true
	default:
		return false
	}
}

// TryPop dequeues a datagram without blocking.
func (q *Inbound) TryPop() (*Datagram, bool) {
	select {
	case d := <-q.c:
		return d, true
	default:
		return nil, false
	}
}

// Pop waits up to timeout for a datagram. It returns (nil, nil) on timeout
// and the context error when ctx is done first.
func (q *Inbound) Pop(ctx context.Context, timeout time.Duration) (*Datagram, error) {
	if d, ok := q.TryPop(); ok {
		return d, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case d := <-q.c:
		return d, nil
	case <-t.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of queued datagrams.
func (q *Inbound) Len() int {
	return len(q.c)
}

// Drain releases every queued datagram.
func (q *Inbound) Drain() {
	for {
		d, ok := q.TryPop()
		if !ok {
			return
		}
		d.Release()
	}
}

// Sender puts an encoded message on the wire.
type Sender interface {
	Send(addr *net.UDPAddr, data []byte) error
}
