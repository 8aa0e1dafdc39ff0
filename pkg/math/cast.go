// Package math holds bound-checked integer conversions.
package math

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

func isSigned[T constraints.Integer]() bool {
	return ^T(0) < 0
}

// Max returns the largest value of T.
func Max[T constraints.Integer]() T {
	if isSigned[T]() {
		var v T = 1
		for v<<1 > 0 {
			v = v<<1 | 1
		}
		return v
	}
	return ^T(0)
}

// Min returns the smallest value of T.
func Min[T constraints.Integer]() T {
	if isSigned[T]() {
		return -Max[T]() - 1
	}
	return 0
}

// SafeCastTo converts from to T and fails when the value does not fit.
func SafeCastTo[T, F constraints.Integer](from F) (T, error) {
	if from > 0 && uint64(Max[T]()) < uint64(from) {
		return T(0), fmt.Errorf("value(%v) exceeds the maximum value for type(%v)", from, Max[T]())
	}
	if from < 0 && int64(Min[T]()) > int64(from) {
		return T(0), fmt.Errorf("value(%v) exceeds the minimum value for type(%v)", from, Min[T]())
	}
	return T(from), nil
}
