package message

import "errors"

var (
	ErrTooSmall                     = errors.New("too small bytes buffer")
	ErrInvalidTokenLen              = errors.New("invalid token length")
	ErrOptionTruncated              = errors.New("option truncated")
	ErrOptionUnexpectedExtendMarker = errors.New("option unexpected extend marker")
	ErrOptionsUnsorted              = errors.New("options are not sorted")
	ErrOptionNotFound               = errors.New("option not found")
	ErrInvalidValueLength           = errors.New("invalid value length")
	ErrCriticalOption               = errors.New("unrecognized critical option")
)
