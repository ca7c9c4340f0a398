//go:build !debug_heap_alloc

package heaputils

import "unsafe"

const (
	// DebugMargin is the number of bytes reserved after each allocation's
	// payload for a corruption canary. Release builds reserve none.
	DebugMargin int = 0
)

// WriteMagicValue fills the DebugMargin bytes at data+offset with the canary
// pattern. It no-ops unless the debug_heap_alloc build tag is present.
func WriteMagicValue(data unsafe.Pointer, offset int) {
}

// ValidateMagicValue reports whether the canary written by WriteMagicValue is
// still intact at data+offset. It always returns true unless the
// debug_heap_alloc build tag is present.
func ValidateMagicValue(data unsafe.Pointer, offset int) bool {
	return true
}

// DebugValidate calls Validate on the provided object and panics if any error
// is returned. It no-ops unless the debug_heap_alloc build tag is present.
func DebugValidate(validatable Validatable) {
}

// DebugCheckPow2 panics if the provided value is not a power of two. It
// no-ops unless the debug_heap_alloc build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
}
