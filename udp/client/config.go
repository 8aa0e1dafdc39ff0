package client

import (
	"time"

	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/options/config"
)

var DefaultConfig = func() Config {
	return Config{
		Common:      config.NewCommon(),
		ChunkSZX:    blockwise.SZX64,
		MaxAttempts: 4,
	}
}()

type Config struct {
	config.Common
	// ChunkSZX is the block size asked for when requesting further blocks.
	ChunkSZX blockwise.SZX
	// MaxAttempts bounds the responses carrying an unexpected block number.
	MaxAttempts int
	// RequestTimeout bounds the wait for one response. Zero derives it from
	// the transmission parameters.
	RequestTimeout time.Duration
}

// A Option sets options of the client.
type Option interface {
	UDPClientApply(cfg *Config)
}

// OptionFunc adapts a function to Option.
type OptionFunc func(cfg *Config)

func (f OptionFunc) UDPClientApply(cfg *Config) {
	f(cfg)
}
