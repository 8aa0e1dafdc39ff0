package server

import (
	"time"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/net/observation"
	"github.com/plgd-dev/coap-engine/options/config"
)

// ServiceFunc is the application's request handler. It fills resp, may use
// buf as payload storage and returns whether the request was handled.
//
// offset holds the byte offset of the requested block. A handler that
// streams a large resource advances it past the bytes it produced, or sets
// it to -1 with its last block. A handler that leaves it unchanged returns
// the whole resource and the engine slices it into blocks.
type ServiceFunc = func(req, resp *message.Message, buf []byte, preferredSize int, offset *int32) bool

var DefaultConfig = func() Config {
	return Config{
		Common:                 config.NewCommon(),
		ReceiveTimeout:         time.Second,
		ExchangeLifetime:       247 * time.Second,
		ObserveClient:          true,
		ObserveRefreshInterval: 20,
		SweepInterval:          5 * time.Second,
		InboundQueueSize:       10,
	}
}()

type Config struct {
	config.Common
	// Service handles requests. Without it every request gets 5.01.
	Service ServiceFunc
	// ReceiveTimeout bounds one wait of Serve for the next datagram.
	ReceiveTimeout time.Duration
	// ExchangeLifetime is how long a reply is kept for retransmitted requests.
	ExchangeLifetime time.Duration
	// ObserveClient delivers notifications to Notifications.
	ObserveClient bool
	// ObserveRefreshInterval makes every n-th notification confirmable.
	ObserveRefreshInterval uint32
	// SweepInterval is the period of the reply cache cleanup.
	SweepInterval time.Duration
	// InboundQueueSize bounds the datagrams waiting for dispatch.
	InboundQueueSize int
	Observers        *observation.Registry
	Notifications    *observation.Hook
}
