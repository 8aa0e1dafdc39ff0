package net

// A UDPOption sets options of an UDPConn.
type UDPOption interface {
	ApplyUDP(*UDPConnConfig)
}

type ErrorsOpt struct {
	errors func(err error)
}

func (h ErrorsOpt) ApplyUDP(o *UDPConnConfig) {
	o.Errors = h.errors
}

// WithErrors sets the callback for read errors that do not stop the read loop.
func WithErrors(v func(err error)) ErrorsOpt {
	return ErrorsOpt{
		errors: v,
	}
}

type BufferSizeOpt struct {
	size int
}

func (h BufferSizeOpt) ApplyUDP(o *UDPConnConfig) {
	o.BufferSize = h.size
}

// WithBufferSize sets the size of each receive buffer. Longer datagrams are
// truncated by the socket.
func WithBufferSize(size int) BufferSizeOpt {
	return BufferSizeOpt{size: size}
}
