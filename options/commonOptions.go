// Package options holds the functional options of the dispatcher and the
// client. Options shared by both roles implement both apply methods.
package options

import (
	"log/slog"
	"time"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/options/config"
	"github.com/plgd-dev/coap-engine/pkg/metrics"
	udpClient "github.com/plgd-dev/coap-engine/udp/client"
	udpServer "github.com/plgd-dev/coap-engine/udp/server"
)

type ErrorFunc = config.ErrorFunc

// ErrorsOpt errors option.
type ErrorsOpt struct {
	errors ErrorFunc
}

func (o ErrorsOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.Errors = o.errors
}

func (o ErrorsOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.Errors = o.errors
}

// WithErrors set function for logging error.
func WithErrors(errors ErrorFunc) ErrorsOpt {
	return ErrorsOpt{errors: errors}
}

// LoggerOpt logger option.
type LoggerOpt struct {
	logger *slog.Logger
}

func (o LoggerOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.Logger = o.logger
}

func (o LoggerOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.Logger = o.logger
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) LoggerOpt {
	return LoggerOpt{logger: logger}
}

// MetricsOpt metrics option.
type MetricsOpt struct {
	metrics metrics.Recorder
}

func (o MetricsOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.Metrics = o.metrics
}

func (o MetricsOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.Metrics = o.metrics
}

// WithMetrics sets the recorder of engine events.
func WithMetrics(m metrics.Recorder) MetricsOpt {
	return MetricsOpt{metrics: m}
}

// MaxMessageSizeOpt handler function option.
type MaxMessageSizeOpt struct {
	maxMessageSize uint32
}

func (o MaxMessageSizeOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.MaxMessageSize = o.maxMessageSize
}

func (o MaxMessageSizeOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.MaxMessageSize = o.maxMessageSize
}

// WithMaxMessageSize limit size of processed message.
func WithMaxMessageSize(maxMessageSize uint32) MaxMessageSizeOpt {
	return MaxMessageSizeOpt{maxMessageSize: maxMessageSize}
}

// MessageIDOpt message id option.
type MessageIDOpt struct {
	getMID func() uint16
}

func (o MessageIDOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.GetMID = o.getMID
}

func (o MessageIDOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.GetMID = o.getMID
}

// WithGetMID allows to set own getMID function to server/client.
func WithGetMID(getMID func() uint16) MessageIDOpt {
	return MessageIDOpt{getMID: getMID}
}

// TokenOpt token option.
type TokenOpt struct {
	getToken func() (message.Token, error)
}

func (o TokenOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.GetToken = o.getToken
}

func (o TokenOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.GetToken = o.getToken
}

// WithGetToken allows to set own getToken function to server/client.
func WithGetToken(getToken func() (message.Token, error)) TokenOpt {
	return TokenOpt{getToken: getToken}
}

// BlockwiseOpt block-wise option.
type BlockwiseOpt struct {
	szx blockwise.SZX
}

func (o BlockwiseOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.BlockwiseSZX = o.szx
}

func (o BlockwiseOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.BlockwiseSZX = o.szx
	cfg.ChunkSZX = o.szx
}

// WithBlockwise sets the largest block the server sends and the block size
// the client asks for.
func WithBlockwise(szx blockwise.SZX) BlockwiseOpt {
	return BlockwiseOpt{szx: szx}
}

// MaxOpenTransactionsOpt pool size option.
type MaxOpenTransactionsOpt struct {
	n int
}

func (o MaxOpenTransactionsOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.MaxOpenTransactions = o.n
}

func (o MaxOpenTransactionsOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.MaxOpenTransactions = o.n
}

// WithMaxOpenTransactions sets how many exchanges can be in flight at once.
func WithMaxOpenTransactions(n int) MaxOpenTransactionsOpt {
	return MaxOpenTransactionsOpt{n: n}
}

// TransmissionOpt transmission options.
type TransmissionOpt struct {
	transmission config.Transmission
}

func (o TransmissionOpt) UDPServerApply(cfg *udpServer.Config) {
	cfg.Transmission = o.transmission
}

func (o TransmissionOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.Transmission = o.transmission
}

// WithTransmission set options for (re)transmission for Confirmable message-s.
func WithTransmission(responseTimeout, backoffWindow time.Duration, maxRetransmit uint32) TransmissionOpt {
	return TransmissionOpt{transmission: config.Transmission{
		ResponseTimeout: responseTimeout,
		BackoffWindow:   backoffWindow,
		MaxRetransmit:   maxRetransmit,
	}}
}
