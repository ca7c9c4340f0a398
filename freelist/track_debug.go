//go:build debug_heap_alloc

package freelist

import (
	"fmt"

	"github.com/dolthub/swiss"

	"github.com/embeddedheap/heaputils"
	"github.com/pkg/errors"
)

// trackedAlloc remembers what a live allocation was created with so a
// mismatched Deallocate can be caught.
type trackedAlloc struct {
	size      int
	alignment uint
}

// allocTracker is the debug-build registry of live allocations, keyed by
// block offset. Release builds swap in the no-op variant from track_prod.go:
// detecting caller contract violations costs memory and time the allocator
// is not willing to spend outside of debugging.
type allocTracker struct {
	live *swiss.Map[int, trackedAlloc]
}

func (t *allocTracker) init() {
	t.live = swiss.NewMap[int, trackedAlloc](42)
}

func (t *allocTracker) recordAllocate(offset, size int, alignment uint) {
	if _, taken := t.live.Get(offset); taken {
		panic(fmt.Sprintf("allocation handed out twice at offset %d", offset))
	}
	t.live.Put(offset, trackedAlloc{size: size, alignment: alignment})
}

func (t *allocTracker) recordFree(offset, size int, alignment uint) {
	alloc, ok := t.live.Get(offset)
	if !ok {
		panic(fmt.Sprintf("deallocated offset %d is not a live allocation", offset))
	}
	if alloc.size != size || alloc.alignment != alignment {
		panic(fmt.Sprintf(
			"allocation at offset %d was made with size %d alignment %d but freed with size %d alignment %d",
			offset, alloc.size, alloc.alignment, size, alignment))
	}
	t.live.Delete(offset)
}

// CheckCorruption verifies the canary behind every live allocation. It
// returns nil when every canary is intact. Only meaningful in
// debug_heap_alloc builds; release builds always return nil.
func (h *Heap) CheckCorruption() error {
	var err error
	h.tracker.live.Iter(func(offset int, alloc trackedAlloc) bool {
		canary := offset + blockSize(alloc.size) - heaputils.DebugMargin
		if !heaputils.ValidateMagicValue(h.data, canary) {
			err = errors.Errorf("memory corruption detected behind allocation at offset %d", offset)
			return true
		}
		return false
	})
	return err
}
