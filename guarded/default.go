package guarded

import "unsafe"

// The package-level allocator is the usual way to reach the heap: one
// process-wide instance that language-runtime glue and interrupt handlers
// share without threading a reference through every call site. It lives for
// the whole process and is never torn down.
var std = Empty(&MutexSection{})

// Default returns the process-wide allocator.
func Default() *Allocator { return std }

// SetCriticalSection replaces the critical-section primitive used by the
// process-wide allocator. Ports call this with their interrupt-masking
// implementation during startup, strictly before Init; swapping the
// primitive once any operation has run is out of contract.
func SetCriticalSection(cs CriticalSection) { std.cs = cs }

// Init binds the process-wide allocator to [startAddr, endAddr). See
// (*Allocator).Init for the safety contract; everything there applies,
// loudly, here too.
func Init(startAddr, endAddr uintptr) { std.Init(startAddr, endAddr) }

// Allocate requests size bytes aligned to alignment from the process-wide
// allocator.
func Allocate(size int, alignment uint) (unsafe.Pointer, error) {
	return std.Allocate(size, alignment)
}

// Deallocate releases a block obtained from Allocate. size and alignment
// must match the originating request.
func Deallocate(ptr unsafe.Pointer, size int, alignment uint) {
	std.Deallocate(ptr, size, alignment)
}
