package options

import (
	"time"

	"github.com/plgd-dev/coap-engine/mux"
	udpClient "github.com/plgd-dev/coap-engine/udp/client"
	udpServer "github.com/plgd-dev/coap-engine/udp/server"
)

// ServiceOpt request handler option.
type ServiceOpt struct {
	service udpServer.ServiceFunc
}

func (o ServiceOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.Service = o.service
}

// WithService sets the function answering requests.
func WithService(service udpServer.ServiceFunc) ServiceOpt {
	return ServiceOpt{service: service}
}

// WithMux answers requests by the router.
func WithMux(m *mux.Router) ServiceOpt {
	return ServiceOpt{service: m.Service()}
}

// ReceiveTimeoutOpt dispatcher wait option.
type ReceiveTimeoutOpt struct {
	timeout time.Duration
}

func (o ReceiveTimeoutOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.ReceiveTimeout = o.timeout
}

// WithReceiveTimeout bounds each wait of the dispatcher for a datagram.
func WithReceiveTimeout(timeout time.Duration) ReceiveTimeoutOpt {
	return ReceiveTimeoutOpt{timeout: timeout}
}

// ExchangeLifetimeOpt reply cache option.
type ExchangeLifetimeOpt struct {
	lifetime time.Duration
}

func (o ExchangeLifetimeOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.ExchangeLifetime = o.lifetime
}

// WithExchangeLifetime sets how long replies are kept for duplicate requests.
func WithExchangeLifetime(lifetime time.Duration) ExchangeLifetimeOpt {
	return ExchangeLifetimeOpt{lifetime: lifetime}
}

// ObserveClientOpt notification delivery option.
type ObserveClientOpt struct {
	enabled bool
}

func (o ObserveClientOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.ObserveClient = o.enabled
}

// WithObserveClient enables delivery of notifications to observing clients.
func WithObserveClient(enabled bool) ObserveClientOpt {
	return ObserveClientOpt{enabled: enabled}
}

// ObserveRefreshIntervalOpt notification reliability option.
type ObserveRefreshIntervalOpt struct {
	n uint32
}

func (o ObserveRefreshIntervalOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.ObserveRefreshInterval = o.n
}

// WithObserveRefreshInterval makes every n-th notification confirmable.
func WithObserveRefreshInterval(n uint32) ObserveRefreshIntervalOpt {
	return ObserveRefreshIntervalOpt{n: n}
}

// InboundQueueSizeOpt inbound queue option.
type InboundQueueSizeOpt struct {
	size int
}

func (o InboundQueueSizeOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.InboundQueueSize = o.size
}

// WithInboundQueueSize bounds the datagrams waiting for dispatch.
func WithInboundQueueSize(size int) InboundQueueSizeOpt {
	return InboundQueueSizeOpt{size: size}
}

// MaxAttemptsOpt client block mismatch option.
type MaxAttemptsOpt struct {
	n int
}

func (o MaxAttemptsOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.MaxAttempts = o.n
}

// WithMaxAttempts bounds the responses with unexpected block number a
// blocking request tolerates.
func WithMaxAttempts(n int) MaxAttemptsOpt {
	return MaxAttemptsOpt{n: n}
}

// RequestTimeoutOpt client wait option.
type RequestTimeoutOpt struct {
	timeout time.Duration
}

func (o RequestTimeoutOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.RequestTimeout = o.timeout
}

// WithRequestTimeout bounds the client's wait for one response.
func WithRequestTimeout(timeout time.Duration) RequestTimeoutOpt {
	return RequestTimeoutOpt{timeout: timeout}
}
