// Package transaction implements the fixed-capacity table of open exchanges
// and the retransmission of confirmable messages.
package transaction

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/plgd-dev/coap-engine/message"
	coapNet "github.com/plgd-dev/coap-engine/net"
	pkgErrors "github.com/plgd-dev/coap-engine/pkg/errors"
	"github.com/plgd-dev/coap-engine/udp/coder"
)

var (
	ErrPoolExhausted       = errors.New("no free transaction")
	ErrTransactionCleared  = errors.New("transaction was cleared")
	ErrRetransmitExhausted = errors.New("peer did not acknowledge")
	ErrEmptyPacket         = errors.New("transaction has no packet")
)

// Pool owns at most Capacity transactions. All state changes happen under
// one mutex; sends and callbacks run outside of it.
type Pool struct {
	cfg    Config
	sender coapNet.Sender

	mutex sync.Mutex
	slots []*Transaction
	free  []int
}

// New creates a pool that writes packets through sender.
func New(sender coapNet.Sender, cfg Config) *Pool {
	cfg = cfg.withDefaults()
	free := make([]int, cfg.Capacity)
	for i := range free {
		free[i] = cfg.Capacity - 1 - i
	}
	return &Pool{
		cfg:    cfg,
		sender: sender,
		slots:  make([]*Transaction, cfg.Capacity),
		free:   free,
	}
}

// Cap returns the capacity of the pool.
func (p *Pool) Cap() int {
	return p.cfg.Capacity
}

// Len returns the number of open transactions.
func (p *Pool) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.cfg.Capacity - len(p.free)
}

func (p *Pool) lookupLocked(mid uint16) *Transaction {
	for _, t := range p.slots {
		if t != nil && t.mid == mid {
			return t
		}
	}
	return nil
}

// Allocate opens a transaction for mid with peer addr. It fails with
// ErrPoolExhausted when the pool is full and with ErrKeyAlreadyExists when
// mid is already open.
func (p *Pool) Allocate(mid uint16, addr *net.UDPAddr) (*Transaction, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.lookupLocked(mid) != nil {
		p.cfg.Metrics.TransactionRejected()
		return nil, fmt.Errorf("message id %v: %w", mid, pkgErrors.ErrKeyAlreadyExists)
	}
	if len(p.free) == 0 {
		p.cfg.Metrics.TransactionRejected()
		return nil, ErrPoolExhausted
	}
	slot := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	t := &Transaction{
		slot: slot,
		mid:  mid,
		addr: addr,
	}
	t.alive.Store(true)
	p.slots[slot] = t
	p.cfg.Metrics.TransactionOpened()
	return t, nil
}

// Lookup returns the open transaction with mid, or nil.
func (p *Pool) Lookup(mid uint16) *Transaction {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.lookupLocked(mid)
}

// SetPacket stores a copy of the encoded message the transaction sends.
func (p *Pool) SetPacket(t *Transaction, packet []byte) error {
	typ, _, err := coder.PeekHeader(packet)
	if err != nil {
		return err
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !t.alive.Load() {
		return ErrTransactionCleared
	}
	t.packet = append(t.packet[:0], packet...)
	t.confirm = typ == message.Confirmable
	return nil
}

// SetResponseHandler sets the function called once with the response, or with
// nil after the last retransmission timed out.
func (p *Pool) SetResponseHandler(t *Transaction, h ResponseHandler) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	t.handler = h
}

// RetransmitCount returns how many times the packet was sent again.
func (p *Pool) RetransmitCount(t *Transaction) uint32 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return t.retransmit
}

func (p *Pool) clearLocked(t *Transaction) bool {
	if t == nil || !t.alive.CompareAndSwap(true, false) {
		return false
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	p.slots[t.slot] = nil
	p.free = append(p.free, t.slot)
	p.cfg.Metrics.TransactionClosed()
	return true
}

// Clear releases t. It is a no-op for nil or already cleared transactions.
func (p *Pool) Clear(t *Transaction) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.clearLocked(t)
}

// Complete clears the transaction with mid and returns its handler. The
// caller invokes the handler after Complete returns.
func (p *Pool) Complete(mid uint16) (ResponseHandler, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	t := p.lookupLocked(mid)
	if t == nil {
		return nil, false
	}
	h := t.handler
	p.clearLocked(t)
	return h, true
}

func (p *Pool) newPolicy() backoff.BackOff {
	initial := p.cfg.ResponseTimeout + p.cfg.Rand.Jitter(p.cfg.BackoffWindow)
	maxInterval := initial
	for i := uint32(0); i < p.cfg.MaxRetransmit && maxInterval < time.Duration(1)<<61; i++ {
		maxInterval *= 2
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.cfg.MaxRetransmit))
}

// Send writes the packet of t. A non-confirmable transaction is cleared right
// after. A confirmable one arms its retransmission timer: the first period is
// ResponseTimeout plus a random part of BackoffWindow and every later period
// doubles. After MaxRetransmit retransmissions the transaction is cleared,
// the peer's observers are dropped and the handler receives nil.
func (p *Pool) Send(t *Transaction) error {
	p.mutex.Lock()
	if !t.alive.Load() {
		p.mutex.Unlock()
		return ErrTransactionCleared
	}
	if len(t.packet) == 0 {
		p.mutex.Unlock()
		return ErrEmptyPacket
	}
	packet, addr, confirm := t.packet, t.addr, t.confirm
	p.mutex.Unlock()

	err := p.sender.Send(addr, packet)
	if err != nil {
		err = fmt.Errorf("cannot send transaction %v: %w", t.mid, err)
		p.cfg.Errors(err)
	}
	if !confirm {
		p.Clear(t)
		return err
	}

	p.mutex.Lock()
	if !t.alive.Load() {
		p.mutex.Unlock()
		return err
	}
	if t.policy == nil {
		t.policy = p.newPolicy()
	}
	if next := t.policy.NextBackOff(); next != backoff.Stop {
		t.period = next
		if t.timer == nil {
			t.timer = p.cfg.AfterFunc(next, func() { p.onTimeout(t) })
		} else {
			t.timer.Reset(next)
		}
		p.mutex.Unlock()
		return err
	}
	h := t.handler
	p.clearLocked(t)
	p.mutex.Unlock()

	p.cfg.Metrics.TransactionTimeout()
	p.cfg.Logger.Debug("transaction timed out", slog.Int("mid", int(t.mid)), slog.String("peer", addr.String()))
	if p.cfg.Observers != nil {
		p.cfg.Observers.RemoveByClient(addr)
	}
	if h != nil {
		h(nil)
	}
	return errors.Join(err, fmt.Errorf("transaction %v: %w", t.mid, ErrRetransmitExhausted))
}

func (p *Pool) onTimeout(t *Transaction) {
	p.mutex.Lock()
	if !t.alive.Load() {
		p.mutex.Unlock()
		return
	}
	t.retransmit++
	n := t.retransmit
	p.mutex.Unlock()
	p.cfg.Metrics.Retransmission()
	p.cfg.Logger.Debug("retransmitting", slog.Int("mid", int(t.mid)), slog.Int("attempt", int(n)))
	_ = p.Send(t)
}
