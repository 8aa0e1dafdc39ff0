package server

import (
	"errors"

	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/net/transaction"
)

var (
	ErrParse                    = errors.New("cannot parse message")
	ErrTransactionPoolExhausted = transaction.ErrPoolExhausted
	ErrNoServiceCallback        = errors.New("no service callback")
	ErrSerialization            = errors.New("cannot serialize packet")
	ErrBlockOutOfRange          = blockwise.ErrBlockOutOfRange
	ErrBlock1Unsupported        = blockwise.ErrBlock1Unsupported
	ErrInvalidBlock2            = errors.New("invalid block2 option")
	ErrInternal                 = errors.New("internal error")
	ErrNotificationNotSent      = errors.New("notification not sent")
)

// Diagnostic payloads of error replies.
const (
	diagNoFreeTransaction = "NoFreeTraBuffer"
	diagNoService         = "NoServiceCallbck"
	diagNoBlock1          = "NoBlock1Support"
	diagSerialization     = "PacketSerialization"
	diagParse             = "ParseError"
	diagBadBlock2         = "BadBlock2"
)
