package transaction

import (
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/plgd-dev/coap-engine/message"
	"go.uber.org/atomic"
)

// ResponseHandler receives the response that closed a transaction, or nil
// when the peer never answered.
type ResponseHandler func(resp *message.Message)

// Transaction is one outstanding exchange. It is valid from Allocate until
// it is cleared; a cleared transaction ignores every further operation.
type Transaction struct {
	slot int
	mid  uint16
	addr *net.UDPAddr

	// guarded by Pool.mutex
	packet     []byte
	confirm    bool
	handler    ResponseHandler
	policy     backoff.BackOff
	period     time.Duration
	timer      Timer
	retransmit uint32

	alive atomic.Bool
}

// MID returns the message id the transaction is keyed by.
func (t *Transaction) MID() uint16 {
	return t.mid
}

// Addr returns the peer.
func (t *Transaction) Addr() *net.UDPAddr {
	return t.addr
}

// Alive reports whether the transaction has not been cleared.
func (t *Transaction) Alive() bool {
	return t.alive.Load()
}
