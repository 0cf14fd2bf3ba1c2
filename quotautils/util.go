package quotautils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

func CheckNonNegative[T constraints.Signed](number T, name string) error {
	if number < 0 {
		return cerrors.Wrapf(NegativeValueError, "%s is %d", name, number)
	}
	return nil
}

// Clamp bounds value to the range [lo, hi]. lo must not exceed hi.
func Clamp[T constraints.Ordered](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
