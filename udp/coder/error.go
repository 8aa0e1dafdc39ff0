package coder

import "errors"

var (
	ErrMessageTruncated            = errors.New("message is truncated")
	ErrMessageInvalidVersion       = errors.New("message has invalid version")
	ErrInvalidType                 = errors.New("invalid message type")
	ErrInternalCode                = errors.New("internal code cannot be serialized")
	ErrEmptyMessageNotEmpty        = errors.New("empty message carries token, options or payload")
	ErrPayloadMarkerWithoutPayload = errors.New("payload marker without payload")
	ErrMessageTooLarge             = errors.New("message exceeds packet buffer")
)
