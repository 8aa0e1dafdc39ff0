package transaction

import (
	"log/slog"
	"net"
	"time"

	"github.com/plgd-dev/coap-engine/pkg/metrics"
	pkgRand "github.com/plgd-dev/coap-engine/pkg/rand"
)

// Timer is the part of *time.Timer the pool uses.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// AfterFunc schedules f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// ObserverRemover drops the observers of a peer that stopped acknowledging.
type ObserverRemover interface {
	RemoveByClient(addr *net.UDPAddr) int
}

type Config struct {
	// Capacity is the number of transactions that can be open at once.
	Capacity int
	// ResponseTimeout is the base of the first retransmission period.
	ResponseTimeout time.Duration
	// BackoffWindow bounds the random extension of the first period.
	BackoffWindow time.Duration
	// MaxRetransmit is the number of retransmissions before giving up.
	MaxRetransmit uint32
	AfterFunc     AfterFunc
	Rand          *pkgRand.Rand
	Observers     ObserverRemover
	Errors        func(error)
	Logger        *slog.Logger
	Metrics       metrics.Recorder
}

var DefaultConfig = Config{
	Capacity:        4,
	ResponseTimeout: 3 * time.Second,
	BackoffWindow:   1500 * time.Millisecond,
	MaxRetransmit:   4,
	AfterFunc: func(d time.Duration, f func()) Timer {
		return time.AfterFunc(d, f)
	},
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = DefaultConfig.Capacity
	}
	if c.AfterFunc == nil {
		c.AfterFunc = DefaultConfig.AfterFunc
	}
	if c.Rand == nil {
		c.Rand = pkgRand.NewRand(time.Now().UnixNano())
	}
	if c.Errors == nil {
		c.Errors = func(error) {}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Nop{}
	}
	return c
}
