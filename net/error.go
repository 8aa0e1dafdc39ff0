package net

type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrConnClosed        = Error("udp connection was closed")
	ErrInboundQueueFull  = Error("inbound queue is full")
	ErrInvalidRemoteAddr = Error("remote address is not an UDP address")
)
