package blockwise

import "errors"

var (
	// ErrBlockNumberExceedLimit block number exceed limit 1,048,575
	ErrBlockNumberExceedLimit = errors.New("block number exceed limit 1,048,575")
	// ErrBlockInvalidSize block has invalid size
	ErrBlockInvalidSize = errors.New("block has invalid size")
	// ErrInvalidSZX invalid block-wise transfer szx
	ErrInvalidSZX = errors.New("invalid block-wise transfer szx")
	// ErrBlockOutOfRange the requested block starts past the end of the payload
	ErrBlockOutOfRange = errors.New("block out of scope")
	// ErrBlock1Unsupported the request carries Block1 and the handler ignored it
	ErrBlock1Unsupported = errors.New("block1 transfer is not supported")
)
