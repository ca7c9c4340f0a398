package heaputils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uintptr
}

// CheckPow2 returns an error wrapping PowerOfTwoError when number is zero or
// not a power of two. name identifies the offending value in the error text.
func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the nearest multiple of alignment, which must be
// a power of two.
func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// AlignDown rounds value down to the nearest multiple of alignment, which
// must be a power of two.
func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// AlignAddrUp rounds a raw address up to the nearest multiple of alignment,
// which must be a power of two.
func AlignAddrUp(addr uintptr, alignment uint) uintptr {
	return (addr + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)
}
