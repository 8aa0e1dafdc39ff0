// Package errors holds sentinel errors shared by several packages.
package errors

import "errors"

var (
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrNotFound         = errors.New("not found")
)
