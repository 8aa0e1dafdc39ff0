// Package metrics records engine activity. The default Recorder discards
// everything; New returns one backed by Prometheus collectors.
package metrics

import (
	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives engine events.
type Recorder interface {
	MessageReceived(typ message.Type, code codes.Code)
	MessageDropped(reason string)
	ReplySent(code codes.Code)
	TransactionOpened()
	TransactionClosed()
	TransactionRejected()
	Retransmission()
	TransactionTimeout()
	BlockMismatch()
	ObserverCount(n int)
}

// Nop discards all events.
type Nop struct{}

func (Nop) MessageReceived(message.Type, codes.Code) {}
func (Nop) MessageDropped(string)                    {}
func (Nop) ReplySent(codes.Code)                     {}
func (Nop) TransactionOpened()                       {}
func (Nop) TransactionClosed()                       {}
func (Nop) TransactionRejected()                     {}
func (Nop) Retransmission()                          {}
func (Nop) TransactionTimeout()                      {}
func (Nop) BlockMismatch()                           {}
func (Nop) ObserverCount(int)                        {}

// Metrics is a Recorder that updates Prometheus collectors.
type Metrics struct {
	received    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	replies     *prometheus.CounterVec
	open        prometheus.Gauge
	rejected    prometheus.Counter
	retransmits prometheus.Counter
	timeouts    prometheus.Counter
	mismatches  prometheus.Counter
	observers   prometheus.Gauge
}

var _ Recorder = (*Metrics)(nil)

const namespace = "coap_engine"

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		received: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Decoded datagrams by message type and code.",
		}, []string{"type", "code"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Datagrams that produced no reply, by reason.",
		}, []string{"reason"}),
		replies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_sent_total",
			Help:      "Replies put on the wire by response code.",
		}, []string{"code"}),
		open: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transactions_open",
			Help:      "Transactions currently held by the pool.",
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_rejected_total",
			Help:      "Allocations refused because the pool was full or the message id was taken.",
		}),
		retransmits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmissions_total",
			Help:      "Confirmable messages sent again after a timeout.",
		}),
		timeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_timeouts_total",
			Help:      "Confirmable transactions abandoned after the last retransmission.",
		}),
		mismatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_block_mismatches_total",
			Help:      "Responses whose Block2 number differed from the requested one.",
		}),
		observers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers",
			Help:      "Registered observers.",
		}),
	}
}

func (m *Metrics) MessageReceived(typ message.Type, code codes.Code) {
	m.received.WithLabelValues(typ.String(), code.String()).Inc()
}

func (m *Metrics) MessageDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ReplySent(code codes.Code) {
	m.replies.WithLabelValues(code.String()).Inc()
}

func (m *Metrics) TransactionOpened()   { m.open.Inc() }
func (m *Metrics) TransactionClosed()   { m.open.Dec() }
func (m *Metrics) TransactionRejected() { m.rejected.Inc() }
func (m *Metrics) Retransmission()      { m.retransmits.Inc() }
func (m *Metrics) TransactionTimeout()  { m.timeouts.Inc() }
func (m *Metrics) BlockMismatch()       { m.mismatches.Inc() }
func (m *Metrics) ObserverCount(n int)  { m.observers.Set(float64(n)) }
