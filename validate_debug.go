//go:build debug_heap_alloc

package heaputils

import "unsafe"

const (
	// DebugMargin is the number of bytes reserved after each allocation's
	// payload for a corruption canary. It is always a multiple of the free
	// block granularity so that debug and release builds carve blocks the
	// same way.
	DebugMargin int = 16
	// corruptionDetectionMagicValue is the 4-byte pattern written across the
	// margin. Anything else found there at deallocation time means the
	// allocation overran its payload.
	corruptionDetectionMagicValue uint32 = 0x7F84E666
)

// WriteMagicValue fills the DebugMargin bytes at data+offset with the canary
// pattern. It no-ops unless the debug_heap_alloc build tag is present.
func WriteMagicValue(data unsafe.Pointer, offset int) {
	dest := unsafe.Add(data, offset)
	words := DebugMargin / int(unsafe.Sizeof(uint32(0)))
	for i := 0; i < words; i++ {
		*(*uint32)(dest) = corruptionDetectionMagicValue
		dest = unsafe.Add(dest, unsafe.Sizeof(uint32(0)))
	}
}

// ValidateMagicValue reports whether the canary written by WriteMagicValue is
// still intact at data+offset. It always returns true unless the
// debug_heap_alloc build tag is present.
func ValidateMagicValue(data unsafe.Pointer, offset int) bool {
	src := unsafe.Add(data, offset)
	words := DebugMargin / int(unsafe.Sizeof(uint32(0)))
	for i := 0; i < words; i++ {
		if *(*uint32)(src) != corruptionDetectionMagicValue {
			return false
		}
		src = unsafe.Add(src, unsafe.Sizeof(uint32(0)))
	}

	return true
}

// DebugValidate calls Validate on the provided object and panics if any error
// is returned. It no-ops unless the debug_heap_alloc build tag is present.
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckPow2 panics if the provided value is not a power of two. It
// no-ops unless the debug_heap_alloc build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
	err := CheckPow2(value, name)
	if err != nil {
		panic(err)
	}
}
