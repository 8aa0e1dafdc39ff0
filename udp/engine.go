// Package udp wires a CoAP endpoint over UDP: the socket read loop, the
// dispatcher and the transaction pool shared by the server and client roles.
package udp

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/hashicorp/go-multierror"
	coapNet "github.com/plgd-dev/coap-engine/net"
	"github.com/plgd-dev/coap-engine/net/observation"
	"github.com/plgd-dev/coap-engine/net/transaction"
	"github.com/plgd-dev/coap-engine/options/config"
	"github.com/plgd-dev/coap-engine/pkg/fn"
	"github.com/plgd-dev/coap-engine/udp/client"
	"github.com/plgd-dev/coap-engine/udp/server"
	"golang.org/x/sync/errgroup"
)

type Engine struct {
	conn          *coapNet.UDPConn
	inbound       *coapNet.Inbound
	pool          *transaction.Pool
	observers     *observation.Registry
	notifications *observation.Hook
	server        *server.Server
	common        config.Common

	mutex   sync.Mutex
	onClose fn.FuncList
}

// Listen binds network/addr and creates an engine on it.
func Listen(network, addr string, opt ...server.Option) (*Engine, error) {
	cfg := resolveConfig(opt)
	conn, err := coapNet.NewListenUDP(network, addr,
		coapNet.WithErrors(cfg.Errors),
		coapNet.WithBufferSize(int(cfg.MaxMessageSize)))
	if err != nil {
		return nil, err
	}
	return NewEngine(conn, opt...), nil
}

func resolveConfig(opt []server.Option) server.Config {
	cfg := server.DefaultConfig
	for _, o := range opt {
		o.UDPServerApply(&cfg)
	}
	if cfg.Errors == nil {
		cfg.Errors = func(error) {}
	}
	return cfg
}

// NewEngine creates an engine on conn. The engine owns conn from now on.
func NewEngine(conn *coapNet.UDPConn, opt ...server.Option) *Engine {
	cfg := resolveConfig(opt)
	observers := cfg.Observers
	if observers == nil {
		observers = observation.NewRegistry(cfg.Metrics.ObserverCount)
	}
	notifications := cfg.Notifications
	if notifications == nil {
		notifications = observation.NewHook(cfg.ObserveClient)
	}
	tcfg := cfg.TransactionConfig()
	tcfg.Observers = observers
	pool := transaction.New(conn, tcfg)
	inbound := coapNet.NewInbound(cfg.InboundQueueSize)

	opt = append(opt, server.WithObservation(observers, notifications))
	return &Engine{
		conn:          conn,
		inbound:       inbound,
		pool:          pool,
		observers:     observers,
		notifications: notifications,
		server:        server.New(inbound, conn, pool, opt...),
		common:        cfg.Common,
	}
}

// Run reads the socket and dispatches datagrams until ctx is done or the
// engine is closed.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return e.conn.ReadLoop(ctx, e.inbound)
	})
	g.Go(func() error {
		return e.server.Serve(ctx)
	})
	return g.Wait()
}

// Server returns the dispatcher.
func (e *Engine) Server() *server.Server {
	return e.server
}

// Client creates a client role sharing the engine's pool and socket. It
// starts from the engine's common settings.
func (e *Engine) Client(opt ...client.Option) *client.Client {
	common := e.common
	opt = append([]client.Option{client.OptionFunc(func(cfg *client.Config) {
		cfg.Common = common
	})}, opt...)
	return client.New(e.pool, e.notifications, opt...)
}

// Pool returns the transaction pool.
func (e *Engine) Pool() *transaction.Pool {
	return e.pool
}

func (e *Engine) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// AddOnClose calls f when the engine is closed.
func (e *Engine) AddOnClose(f func()) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.onClose = append(e.onClose, f)
}

// Close closes the socket and runs the close callbacks in reverse order.
func (e *Engine) Close() error {
	var errs *multierror.Error
	if err := e.conn.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("cannot close socket: %w", err))
	}
	e.inbound.Drain()
	e.mutex.Lock()
	onClose := e.onClose
	e.onClose = nil
	e.mutex.Unlock()
	onClose.Execute()
	return errs.ErrorOrNil()
}
