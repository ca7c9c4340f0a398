package heaputils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// OutOfMemoryError is returned from Allocate when no free block can satisfy a
// request. It is the only expected failure of a correctly-used heap: callers
// should test for it with errors.Is and decide their own retry or abort
// policy. The heap remains valid and reusable after returning it.
var OutOfMemoryError error = errors.New("out of memory")
