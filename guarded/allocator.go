package guarded

import (
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/embeddedheap/heaputils/freelist"
)

// Allocator is the single gate in front of one freelist.Heap. Every
// operation runs inside the critical section, so the heap is never observed
// in an inconsistent intermediate state: operations are totally ordered by
// the order in which they enter the section, and an interrupt handler that
// allocates sees exactly the same heap a foreground caller would.
//
// The critical section is held only for the duration of the first-fit search
// or the coalescing walk. While it is held, every interrupt on the core is
// stalled, so nothing long-running belongs inside it.
type Allocator struct {
	cs   CriticalSection
	heap *freelist.Heap
}

// Empty returns an Allocator wrapping a heap with no backing region.
// Construction touches no memory, so it is safe to do at process start
// before interrupts are enabled. cs supplies the target's critical-section
// primitive; hosted targets can pass a MutexSection.
func Empty(cs CriticalSection) *Allocator {
	return &Allocator{cs: cs, heap: freelist.EmptyHeap()}
}

// Init binds the allocator to the raw region [startAddr, endAddr). The
// addresses normally come from linker-script symbols marking the RAM left
// between the static sections and the stack reservation; nothing about them
// can be verified here, which is why the whole contract rests on the caller:
//
//   - Init is called exactly once.
//   - Init completes strictly before the first Allocate or Deallocate, and
//     strictly before any interrupt that could reach this allocator is
//     enabled.
//   - endAddr > startAddr, and no other owner (stack, static data, another
//     allocator) overlaps the region.
//
// Violations are not runtime errors; they are undefined behavior.
func (a *Allocator) Init(startAddr, endAddr uintptr) {
	size := int(endAddr - startAddr)
	a.cs.Protect(func() {
		// startAddr designates memory that was never part of the Go heap;
		// materializing a pointer from it is the purpose of this entry point.
		a.heap.Init(unsafe.Pointer(startAddr), size) //nolint:govet
	})
}

// Allocate requests size bytes aligned to alignment (a power of two). It is
// safe to call from interrupt handlers. The only expected failure is an
// error wrapping heaputils.OutOfMemoryError, which is passed through to the
// caller untouched: retry and abort policy belong there, never here.
func (a *Allocator) Allocate(size int, alignment uint) (unsafe.Pointer, error) {
	var ptr unsafe.Pointer
	var err error
	a.cs.Protect(func() {
		ptr, err = a.heap.Allocate(size, alignment)
	})
	return ptr, err
}

// Deallocate releases a block obtained from Allocate. size and alignment
// must match the originating request. Safe to call from interrupt handlers.
func (a *Allocator) Deallocate(ptr unsafe.Pointer, size int, alignment uint) {
	a.cs.Protect(func() {
		a.heap.Deallocate(ptr, size, alignment)
	})
}

// FreeBytes returns the total free bytes currently in the heap, read under
// the critical section.
func (a *Allocator) FreeBytes() int {
	var free int
	a.cs.Protect(func() {
		free = a.heap.FreeBytes()
	})
	return free
}

// Validate runs the heap's internal consistency checks under the critical
// section. Diagnostic use only.
func (a *Allocator) Validate() error {
	var err error
	a.cs.Protect(func() {
		err = a.heap.Validate()
	})
	return err
}

// LayoutJson returns a JSON snapshot of the heap layout, taken atomically
// under the critical section. Diagnostic use only: the free-list walk and
// the serialization both stall interrupts, so this does not belong anywhere
// near time-critical code.
func (a *Allocator) LayoutJson() ([]byte, error) {
	w := jwriter.NewWriter()
	a.cs.Protect(func() {
		obj := w.Object()
		a.heap.LayoutJson(obj)
		obj.End()
	})

	if err := w.Error(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
