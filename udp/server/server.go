// Package server is the CoAP dispatcher: it takes datagrams from the inbound
// queue, answers requests through the application's service function and
// routes responses to the transactions that wait for them.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/plgd-dev/coap-engine/message"
	coapNet "github.com/plgd-dev/coap-engine/net"
	"github.com/plgd-dev/coap-engine/net/observation"
	"github.com/plgd-dev/coap-engine/net/transaction"
	"github.com/plgd-dev/coap-engine/pkg/cache"
	"github.com/plgd-dev/coap-engine/pkg/metrics"
	"github.com/plgd-dev/coap-engine/pkg/runner/periodic"
	"github.com/plgd-dev/coap-engine/udp/coder"
)

// A Option sets options of the dispatcher.
type Option interface {
	UDPServerApply(cfg *Config)
}

// OptionFunc adapts a function to Option.
type OptionFunc func(cfg *Config)

func (f OptionFunc) UDPServerApply(cfg *Config) {
	f(cfg)
}

// WithObservation shares the observer registry and notification hook with
// other parts of the engine.
func WithObservation(observers *observation.Registry, notifications *observation.Hook) Option {
	return OptionFunc(func(cfg *Config) {
		cfg.Observers = observers
		cfg.Notifications = notifications
	})
}

type Server struct {
	cfg     *Config
	inbound *coapNet.Inbound
	sender  coapNet.Sender
	pool    *transaction.Pool

	// replies keeps encoded replies by peer and message id so that a
	// retransmitted request is answered without running the service again.
	replies *cache.Cache[string, []byte]

	// mutex serializes dispatching and notifying; both use the buffers below.
	mutex      sync.Mutex
	payloadBuf []byte
	encodeBuf  []byte
}

// New creates a dispatcher reading from inbound. Replies go through pool,
// one-shot error replies straight to sender.
func New(inbound *coapNet.Inbound, sender coapNet.Sender, pool *transaction.Pool, opt ...Option) *Server {
	cfg := DefaultConfig
	for _, o := range opt {
		o.UDPServerApply(&cfg)
	}
	if cfg.Errors == nil {
		cfg.Errors = func(error) {}
	}
	errorsFunc := cfg.Errors
	cfg.Errors = func(err error) {
		errorsFunc(fmt.Errorf("udp: %w", err))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.GetMID == nil {
		cfg.GetMID = message.GetMID
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = DefaultConfig.ReceiveTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig.SweepInterval
	}
	if cfg.Observers == nil {
		cfg.Observers = observation.NewRegistry(cfg.Metrics.ObserverCount)
	}
	if cfg.Notifications == nil {
		cfg.Notifications = observation.NewHook(cfg.ObserveClient)
	}
	return &Server{
		cfg:        &cfg,
		inbound:    inbound,
		sender:     sender,
		pool:       pool,
		replies:    cache.NewCache[string, []byte](),
		payloadBuf: make([]byte, cfg.MaxMessageSize),
		encodeBuf:  make([]byte, cfg.MaxMessageSize),
	}
}

// Observers returns the registry of peers observing local resources.
func (s *Server) Observers() *observation.Registry {
	return s.cfg.Observers
}

// Notifications returns the hook receiving notifications for local observations.
func (s *Server) Notifications() *observation.Hook {
	return s.cfg.Notifications
}

// Serve dispatches datagrams until ctx is done. Each wait for a datagram is
// bounded by ReceiveTimeout. Per-message failures are logged and reported
// through the errors callback; they do not stop Serve.
func (s *Server) Serve(ctx context.Context) error {
	periodic.New(ctx.Done(), s.cfg.SweepInterval)(func(now time.Time) bool {
		s.replies.CheckExpirations(now)
		return true
	})
	defer s.inbound.Drain()
	for {
		d, err := s.inbound.Pop(ctx, s.cfg.ReceiveTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if d == nil {
			continue
		}
		if err := s.process(d); err != nil {
			s.cfg.Logger.Debug("message processing failed", slog.Any("error", err))
			s.cfg.Errors(err)
		}
	}
}

// ReceiveOnce processes at most one queued datagram without waiting. It
// returns nil when the queue is empty.
func (s *Server) ReceiveOnce() error {
	d, ok := s.inbound.TryPop()
	if !ok {
		return nil
	}
	return s.process(d)
}

func replyKey(addr *net.UDPAddr, mid uint16) string {
	return addr.String() + "#" + strconv.Itoa(int(mid))
}

func (s *Server) send(addr *net.UDPAddr, data []byte) {
	if err := s.sender.Send(addr, data); err != nil {
		s.cfg.Errors(fmt.Errorf("cannot send reply to %v: %w", addr, err))
	}
}

func (s *Server) encode(m *message.Message) ([]byte, error) {
	n, err := coder.DefaultCoder.Encode(m, s.encodeBuf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return s.encodeBuf[:n], nil
}
