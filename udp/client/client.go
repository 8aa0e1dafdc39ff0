// Package client drives blocking CoAP requests: one block at a time, each
// sent through the transaction pool and awaited with a bounded wait.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/net/observation"
	"github.com/plgd-dev/coap-engine/net/transaction"
	"github.com/plgd-dev/coap-engine/pkg/metrics"
	"github.com/plgd-dev/coap-engine/udp/coder"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

var (
	ErrServerNotResponding = errors.New("server not responding")
	ErrBlockMismatch       = errors.New("too many responses with unexpected block number")
)

// ChunkFunc receives each response of a blocking request in block order.
type ChunkFunc func(resp *message.Message)

type Client struct {
	cfg           *Config
	pool          *transaction.Pool
	notifications *observation.Hook
	// sem admits one blocking request at a time.
	sem        *semaphore.Weighted
	state      atomic.Int32
	mismatches atomic.Uint32
}

// New creates a client sending through pool. Responses reach it through the
// dispatcher sharing the same pool; notifications through notifications.
func New(pool *transaction.Pool, notifications *observation.Hook, opt ...Option) *Client {
	cfg := DefaultConfig
	for _, o := range opt {
		o.UDPClientApply(&cfg)
	}
	if cfg.Errors == nil {
		cfg.Errors = func(error) {}
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
	if cfg.GetToken == nil {
		cfg.GetToken = message.GetToken
	}
	if cfg.ChunkSZX.Size() < 0 {
		cfg.ChunkSZX = DefaultConfig.ChunkSZX
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = cfg.ExchangeTimeout() + time.Second
	}
	if notifications == nil {
		notifications = observation.NewHook(false)
	}
	return &Client{
		cfg:           &cfg,
		pool:          pool,
		notifications: notifications,
		sem:           semaphore.NewWeighted(1),
	}
}

// State returns the phase of the current or last request.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Mismatches returns how many responses of the current or last request
// carried an unexpected block number.
func (c *Client) Mismatches() uint32 {
	return c.mismatches.Load()
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Request sends req to peer as a confirmable message and hands every block
// of the response to onChunk. Further blocks are requested with Block2 of
// ChunkSZX size until a response carries no more flag. A response with a
// different block number than requested is not passed on; the same block is
// requested again, at most MaxAttempts times in total.
func (c *Client) Request(ctx context.Context, peer *net.UDPAddr, req *message.Message, onChunk ChunkFunc) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	c.setState(Requesting)
	c.mismatches.Store(0)
	var blockNum uint32
	for {
		resp, err := c.exchange(ctx, peer, req, blockNum)
		if err != nil {
			c.setState(Failed)
			return err
		}
		b, found, err := blockwise.Get(resp, message.Block2)
		if err != nil {
			c.setState(Failed)
			return fmt.Errorf("invalid response: %w", err)
		}
		if !found {
			b = blockwise.Block{}
		}
		if b.Num == blockNum {
			if onChunk != nil {
				onChunk(resp)
			}
			blockNum++
		} else {
			c.mismatches.Inc()
			c.cfg.Metrics.BlockMismatch()
			c.cfg.Logger.Debug("unexpected block", slog.Int("got", int(b.Num)), slog.Int("want", int(blockNum)))
		}
		if !b.More {
			c.setState(Done)
			return nil
		}
		if n := c.mismatches.Load(); int(n) >= c.cfg.MaxAttempts {
			c.setState(Failed)
			return fmt.Errorf("%w: %v", ErrBlockMismatch, n)
		}
		c.setState(Requesting)
	}
}

func (c *Client) newRequest(req *message.Message, blockNum uint32) (*message.Message, error) {
	m := &message.Message{
		Type:      message.Confirmable,
		Code:      req.Code,
		Token:     req.Token,
		Options:   req.Options.Clone(),
		Payload:   req.Payload,
		MessageID: c.cfg.GetMID(),
	}
	if blockNum > 0 {
		if err := blockwise.Set(m, message.Block2, blockNum, false, c.cfg.ChunkSZX.Size()); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// exchange sends one request and waits for its response.
func (c *Client) exchange(ctx context.Context, peer *net.UDPAddr, req *message.Message, blockNum uint32) (*message.Message, error) {
	m, err := c.newRequest(req, blockNum)
	if err != nil {
		return nil, err
	}
	t, err := c.pool.Allocate(m.MessageID, peer)
	if err != nil {
		return nil, fmt.Errorf("cannot allocate transaction: %w", err)
	}
	responses := make(chan *message.Message, 1)
	c.pool.SetResponseHandler(t, func(resp *message.Message) {
		select {
		case responses <- resp:
		default:
		}
	})
	packet, err := coder.DefaultCoder.Marshal(m, int(c.cfg.MaxMessageSize))
	if err != nil {
		c.pool.Clear(t)
		return nil, err
	}
	if err := c.pool.SetPacket(t, packet); err != nil {
		c.pool.Clear(t)
		return nil, err
	}
	c.setState(AwaitingResponse)
	if err := c.pool.Send(t); err != nil {
		c.cfg.Logger.Debug("request send failed", slog.Any("error", err))
	}
	return c.await(ctx, t, responses)
}

func (c *Client) await(ctx context.Context, t *transaction.Transaction, responses <-chan *message.Message) (*message.Message, error) {
	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case resp := <-responses:
		if resp == nil {
			return nil, ErrServerNotResponding
		}
		return resp, nil
	case <-timer.C:
		c.pool.Clear(t)
		return nil, ErrServerNotResponding
	case <-ctx.Done():
		c.pool.Clear(t)
		return nil, ctx.Err()
	}
}

// Get fetches path and returns the whole representation, reassembling it
// from its blocks.
func (c *Client) Get(ctx context.Context, peer *net.UDPAddr, path string) ([]byte, codes.Code, error) {
	token, err := c.cfg.GetToken()
	if err != nil {
		return nil, 0, err
	}
	req := &message.Message{
		Code:    codes.GET,
		Token:   token,
		Options: message.Options{}.SetPath(path),
	}
	a := blockwise.NewAssembler()
	var code codes.Code
	var errs []error
	err = c.Request(ctx, peer, req, func(resp *message.Message) {
		code = resp.Code
		b, found, err := blockwise.Get(resp, message.Block2)
		if err == nil && found {
			errs = append(errs, a.WriteBlock(b, resp.Payload))
			return
		}
		errs = append(errs, a.Append(resp.Payload))
	})
	if err != nil {
		return nil, code, err
	}
	if err := errors.Join(errs...); err != nil {
		return nil, code, err
	}
	return a.Bytes(), code, nil
}

// Ping sends an empty confirmable message. Any reset or acknowledgement
// completes it.
func (c *Client) Ping(ctx context.Context, peer *net.UDPAddr) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)
	resp, err := c.exchange(ctx, peer, &message.Message{Code: codes.Empty}, 0)
	if err != nil {
		return err
	}
	if resp.Type != message.Reset && resp.Type != message.Acknowledgement {
		return fmt.Errorf("unexpected pong type %v", resp.Type)
	}
	return nil
}
