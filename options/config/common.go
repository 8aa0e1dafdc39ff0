// Package config holds the settings shared by the dispatcher and the client.
package config

import (
	"log/slog"
	"time"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/net/transaction"
	"github.com/plgd-dev/coap-engine/pkg/metrics"
)

type ErrorFunc = func(error)

// Transmission controls retransmission of confirmable messages.
type Transmission struct {
	ResponseTimeout time.Duration
	BackoffWindow   time.Duration
	MaxRetransmit   uint32
}

type Common struct {
	Errors              ErrorFunc
	Logger              *slog.Logger
	Metrics             metrics.Recorder
	GetMID              func() uint16
	GetToken            func() (message.Token, error)
	MaxMessageSize      uint32
	BlockwiseSZX        blockwise.SZX
	MaxOpenTransactions int
	Transmission        Transmission
}

func NewCommon() Common {
	return Common{
		Errors: func(error) {
			// errors are also logged at debug level by their origin
		},
		Logger:              slog.Default(),
		Metrics:             metrics.Nop{},
		GetMID:              message.GetMID,
		GetToken:            message.GetToken,
		MaxMessageSize:      1152,
		BlockwiseSZX:        blockwise.SZX64,
		MaxOpenTransactions: 4,
		Transmission: Transmission{
			ResponseTimeout: 3 * time.Second,
			BackoffWindow:   1500 * time.Millisecond,
			MaxRetransmit:   4,
		},
	}
}

// MaxBlockSize returns the block size in bytes.
func (c *Common) MaxBlockSize() int {
	return c.BlockwiseSZX.Size()
}

// TransactionConfig derives the pool settings.
func (c *Common) TransactionConfig() transaction.Config {
	return transaction.Config{
		Capacity:        c.MaxOpenTransactions,
		ResponseTimeout: c.Transmission.ResponseTimeout,
		BackoffWindow:   c.Transmission.BackoffWindow,
		MaxRetransmit:   c.Transmission.MaxRetransmit,
		Errors:          c.Errors,
		Logger:          c.Logger,
		Metrics:         c.Metrics,
	}
}

// ExchangeTimeout is how long a confirmable exchange can last before the
// pool gives up: the sum of every retransmission period plus one last wait.
func (c *Common) ExchangeTimeout() time.Duration {
	period := c.Transmission.ResponseTimeout + c.Transmission.BackoffWindow
	total := time.Duration(0)
	for i := uint32(0); i <= c.Transmission.MaxRetransmit; i++ {
		total += period
		period *= 2
	}
	return total
}
