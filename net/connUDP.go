package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// UDPConn is the engine's socket. One goroutine runs ReadLoop while any
// number of goroutines call Send.
type UDPConn struct {
	packetConn packetConn
	network    string
	connection *net.UDPConn
	errors     func(err error)
	buffers    sync.Pool
	closed     atomic.Bool
}

type packetConn interface {
	WriteTo(b []byte, dst net.Addr) (n int, err error)
	ReadFrom(b []byte) (n int, src net.Addr, err error)
	IsIPv6() bool
}

type packetConnIPv4 struct {
	packetConn *ipv4.PacketConn
}

func (p *packetConnIPv4) IsIPv6() bool {
	return false
}

func (p *packetConnIPv4) WriteTo(b []byte, dst net.Addr) (int, error) {
	return p.packetConn.WriteTo(b, nil, dst)
}

func (p *packetConnIPv4) ReadFrom(b []byte) (int, net.Addr, error) {
	n, _, src, err := p.packetConn.ReadFrom(b)
	return n, src, err
}

type packetConnIPv6 struct {
	packetConn *ipv6.PacketConn
}

func (p *packetConnIPv6) IsIPv6() bool {
	return true
}

func (p *packetConnIPv6) WriteTo(b []byte, dst net.Addr) (int, error) {
	return p.packetConn.WriteTo(b, nil, dst)
}

func (p *packetConnIPv6) ReadFrom(b []byte) (int, net.Addr, error) {
	n, _, src, err := p.packetConn.ReadFrom(b)
	return n, src, err
}

// IsIPv6 return's true if addr is IPV6.
func IsIPv6(addr net.IP) bool {
	if ip := addr.To16(); ip != nil && ip.To4() == nil {
		return true
	}
	return false
}

// DefaultUDPConnConfig sizes receive buffers for a 1152 byte CoAP message.
var DefaultUDPConnConfig = UDPConnConfig{
	Errors:     func(error) {},
	BufferSize: 1152,
}

type UDPConnConfig struct {
	Errors     func(err error)
	BufferSize int
}

// NewListenUDP binds a socket on addr.
func NewListenUDP(network, addr string, opts ...UDPOption) (*UDPConn, error) {
	listenAddress, err := net.ResolveUDPAddr(network, addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP(network, listenAddress)
	if err != nil {
		return nil, err
	}
	c, err := NewUDPConn(network, conn, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func newPacketConn(c *net.UDPConn) (packetConn, error) {
	laddr := c.LocalAddr()
	if laddr == nil {
		return nil, errors.New("invalid UDP connection")
	}
	addr, ok := laddr.(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("invalid address type(%T), UDP address expected", laddr)
	}
	if IsIPv6(addr.IP) {
		return &packetConnIPv6{packetConn: ipv6.NewPacketConn(c)}, nil
	}
	return &packetConnIPv4{packetConn: ipv4.NewPacketConn(c)}, nil
}

// NewUDPConn creates connection over net.UDPConn.
func NewUDPConn(network string, c *net.UDPConn, opts ...UDPOption) (*UDPConn, error) {
	cfg := DefaultUDPConnConfig
	for _, o := range opts {
		o.ApplyUDP(&cfg)
	}
	if cfg.Errors == nil {
		cfg.Errors = func(error) {}
	}
	pc, err := newPacketConn(c)
	if err != nil {
		return nil, err
	}
	size := cfg.BufferSize
	return &UDPConn{
		network:    network,
		connection: c,
		packetConn: pc,
		errors:     cfg.Errors,
		buffers: sync.Pool{New: func() any {
			b := make([]byte, size)
			return &b
		}},
	}, nil
}

// LocalAddr returns the local network address.
func (c *UDPConn) LocalAddr() net.Addr {
	return c.connection.LocalAddr()
}

// Network name of the network (for example, udp4, udp6, udp)
func (c *UDPConn) Network() string {
	return c.network
}

// Close closes the connection and unblocks ReadLoop.
func (c *UDPConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.connection.Close()
}

// Send writes one datagram to addr.
func (c *UDPConn) Send(addr *net.UDPAddr, data []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if addr == nil {
		return ErrInvalidRemoteAddr
	}
	n, err := c.packetConn.WriteTo(data, addr)
	if err != nil {
		return fmt.Errorf("cannot write to %v: %w", addr, err)
	}
	if n != len(data) {
		return fmt.Errorf("cannot write to %v: short write %v/%v", addr, n, len(data))
	}
	return nil
}

// ReadLoop reads datagrams into pooled buffers and pushes them to q until
// ctx is done or the connection is closed. A datagram that does not fit in q
// is dropped and reported through the errors callback.
func (c *UDPConn) ReadLoop(ctx context.Context, q *Inbound) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stop()
	for {
		bufp := c.buffers.Get().(*[]byte) //nolint:forcetypeassert
		n, src, err := c.packetConn.ReadFrom(*bufp)
		if err != nil {
			c.buffers.Put(bufp)
			if c.closed.Load() {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("cannot read from %v: %w", c.LocalAddr(), err)
		}
		addr, ok := src.(*net.UDPAddr)
		if !ok {
			c.buffers.Put(bufp)
			c.errors(fmt.Errorf("%w: %T", ErrInvalidRemoteAddr, src))
			continue
		}
		d := NewDatagram((*bufp)[:n], addr, func() { c.buffers.Put(bufp) })
		if !q.Push(d) {
			d.Release()
			c.errors(fmt.Errorf("datagram from %v dropped: %w", addr, ErrInboundQueueFull))
		}
	}
}
