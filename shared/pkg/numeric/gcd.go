package numeric

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned when an operand is zero
var ErrInvalidArgument = errors.New("invalid argument")

// GCD returns the greatest common divisor of n and m using the iterative
// Euclidean algorithm. Both operands must be non-zero.
func GCD(n, m uint64) (uint64, error) {
	if n == 0 || m == 0 {
		return 0, fmt.Errorf("%w: gcd(%d, %d) requires non-zero operands", ErrInvalidArgument, n, m)
	}

	for m != 0 {
		if m < n {
			n, m = m, n
		}
		m %= n
	}

	return n, nil
}

// MustGCD is like GCD but panics if an operand is zero
func MustGCD(n, m uint64) uint64 {
	d, err := GCD(n, m)
	if err != nil {
		panic(err)
	}
	return d
}
