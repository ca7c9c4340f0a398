package freelist

import (
	"unsafe"

	"github.com/embeddedheap/heaputils"
	"github.com/pkg/errors"
)

// hole is the header written into the first bytes of every free run. The free
// list lives entirely inside the memory being managed: no bookkeeping is ever
// allocated outside the region, which is what makes the heap usable as the
// backing store for a language allocator.
//
// size counts the whole run, header included. next is the offset of the next
// hole in ascending address order, or nullOffset.
type hole struct {
	size int
	next int
}

const (
	nullOffset = -1

	// headerSize doubles as the minimum viable block size and the carving
	// granularity. Every block offset and every block size the heap produces
	// is a multiple of it, which guarantees that a split remainder or a run
	// of alignment padding can always host a hole header. It also lets
	// Deallocate recompute the exact number of bytes an allocation consumed
	// from the caller-provided size alone.
	headerSize = int(unsafe.Sizeof(hole{}))
)

// Heap manages a single contiguous region of raw memory using an
// address-ordered free list with a first-fit placement policy. Blocks are
// split on allocation and coalesced with both neighbors on deallocation.
//
// Heap performs no locking and assumes exclusive access for the duration of
// every call; guarded.Allocator provides the critical-section wrapper that
// makes it reachable from interrupt context.
type Heap struct {
	data      unsafe.Pointer
	size      int
	holes     int
	freeBytes int

	tracker allocTracker
}

var _ heaputils.Validatable = &Heap{}

// EmptyHeap constructs a Heap with no backing region and an empty free list.
// Init must be called before any other method; the Heap does not re-check
// this.
func EmptyHeap() *Heap {
	return &Heap{holes: nullOffset}
}

// Init establishes the region [bottom, bottom+size) as a single free block
// spanning the whole region. The bottom address is rounded up and the size
// rounded down to the header granularity, so a few leading or trailing bytes
// of a misaligned region may go unused.
//
// Init must be called exactly once, before the first Allocate or Deallocate.
// The region must not be owned by anything else and must stay mapped for the
// life of the Heap. Violating any of this is not detected.
func (h *Heap) Init(bottom unsafe.Pointer, size int) {
	adjust := int(heaputils.AlignAddrUp(uintptr(bottom), uint(headerSize)) - uintptr(bottom))

	h.data = unsafe.Add(bottom, adjust)
	h.size = heaputils.AlignDown(size-adjust, uint(headerSize))
	h.tracker.init()

	// A region too small to host even one header degrades to a heap with no
	// free list at all; writing the header would land past the region's end.
	if h.size < headerSize {
		h.size = 0
		h.freeBytes = 0
		h.holes = nullOffset
		return
	}

	h.freeBytes = h.size
	h.holes = 0

	first := h.holeAt(0)
	first.size = h.size
	first.next = nullOffset
}

func (h *Heap) holeAt(offset int) *hole {
	return (*hole)(unsafe.Add(h.data, offset))
}

// setNext repoints the list link that currently addresses a hole: the list
// head when prev is nullOffset, the previous hole's next link otherwise.
func (h *Heap) setNext(prev, offset int) {
	if prev == nullOffset {
		h.holes = offset
	} else {
		h.holeAt(prev).next = offset
	}
}

// blockSize returns the number of region bytes a request for size payload
// bytes actually consumes: at least one header, rounded up to the carving
// granularity, plus the debug margin in canary builds.
func blockSize(size int) int {
	if size < headerSize {
		size = headerSize
	}
	return heaputils.AlignUp(size, uint(headerSize)) + heaputils.DebugMargin
}

// alignedOffset rounds the address of a block offset up to alignment and
// returns the matching offset. Because block offsets and the region base are
// granularity-aligned, the resulting padding is always either zero or large
// enough to host a hole header.
func (h *Heap) alignedOffset(offset int, alignment uint) int {
	addr := uintptr(h.data) + uintptr(offset)
	return offset + int(heaputils.AlignAddrUp(addr, alignment)-addr)
}

// Allocate services a request for size bytes aligned to alignment, which must
// be a power of two. The first free block (in ascending address order) whose
// aligned interior can hold the request is chosen. Alignment padding at the
// front of the chosen block stays in the free list as its own block, and a
// tail remainder is split off the same way, so no usable byte ever leaves the
// free list except as part of a live allocation.
//
// When no free block fits, an error wrapping heaputils.OutOfMemoryError is
// returned and the heap is left untouched.
//
// Zero-size requests are served without touching the free list: they receive
// a well-aligned sentinel pointer that must not be dereferenced, and that is
// ignored when handed back to Deallocate.
func (h *Heap) Allocate(size int, alignment uint) (unsafe.Pointer, error) {
	if err := heaputils.CheckPow2(alignment, "alignment"); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, errors.Errorf("invalid allocation size: %d", size)
	}
	if size == 0 {
		// The dangling-but-aligned sentinel. It points at no storage and
		// never overlaps a live allocation because it is never handed out by
		// the free list.
		return unsafe.Pointer(uintptr(alignment)), nil //nolint:govet
	}

	heaputils.DebugValidate(h)
	allocSize := blockSize(size)

	prev := nullOffset
	for offset := h.holes; offset != nullOffset; {
		block := h.holeAt(offset)
		aligned := h.alignedOffset(offset, alignment)
		pad := aligned - offset

		if block.size >= pad+allocSize {
			h.carve(prev, offset, aligned, allocSize)
			h.tracker.recordAllocate(aligned, size, alignment)
			if heaputils.DebugMargin > 0 {
				heaputils.WriteMagicValue(h.data, aligned+allocSize-heaputils.DebugMargin)
			}
			return unsafe.Add(h.data, aligned), nil
		}

		prev = offset
		offset = block.next
	}

	return nil, errors.Wrapf(heaputils.OutOfMemoryError,
		"no free block holds %d bytes aligned to %d", size, alignment)
}

// carve takes allocSize bytes at aligned out of the free block at offset,
// re-linking whatever front padding and tail remainder are left over as free
// blocks in the positions that keep the list address-ordered.
func (h *Heap) carve(prev, offset, aligned, allocSize int) {
	block := h.holeAt(offset)
	pad := aligned - offset
	remainder := block.size - pad - allocSize
	next := block.next

	tail := nullOffset
	if remainder > 0 {
		tail = aligned + allocSize
		tailBlock := h.holeAt(tail)
		tailBlock.size = remainder
		tailBlock.next = next
	}

	if pad > 0 {
		// The original header survives as the front padding's header.
		block.size = pad
		if tail != nullOffset {
			block.next = tail
		} else {
			block.next = next
		}
	} else if tail != nullOffset {
		h.setNext(prev, tail)
	} else {
		h.setNext(prev, next)
	}

	h.freeBytes -= allocSize
}

// Deallocate returns the block at ptr to the free list and merges it with
// either or both physically adjacent free neighbors. size and alignment must
// match the originating Allocate call; handing back anything that was not
// returned by a matching Allocate is out of contract and is only detected in
// debug_heap_alloc builds.
func (h *Heap) Deallocate(ptr unsafe.Pointer, size int, alignment uint) {
	if size == 0 {
		return
	}

	offset := int(uintptr(ptr) - uintptr(h.data))
	freed := blockSize(size)

	h.tracker.recordFree(offset, size, alignment)
	if heaputils.DebugMargin > 0 {
		if !heaputils.ValidateMagicValue(h.data, offset+freed-heaputils.DebugMargin) {
			panic("heap corruption detected behind deallocated block")
		}
	}
	heaputils.DebugValidate(h)

	prev := nullOffset
	next := h.holes
	for next != nullOffset && next < offset {
		prev = next
		next = h.holeAt(next).next
	}

	merged := freed

	// Absorb the following free block when it starts where this one ends.
	if next != nullOffset && offset+freed == next {
		following := h.holeAt(next)
		merged += following.size
		next = following.next
	}

	// Fold into the preceding free block when that block ends here;
	// otherwise write a fresh header.
	if prev != nullOffset {
		preceding := h.holeAt(prev)
		if prev+preceding.size == offset {
			preceding.size += merged
			preceding.next = next
			h.freeBytes += freed
			return
		}
	}

	block := h.holeAt(offset)
	block.size = merged
	block.next = next
	h.setNext(prev, offset)
	h.freeBytes += freed
}

// Granularity returns the carving granularity: the size of an in-place block
// header, which is also the minimum viable block size. Allocations consume a
// multiple of it.
func Granularity() int { return headerSize }

// Size returns the usable size of the managed region in bytes.
func (h *Heap) Size() int { return h.size }

// FreeBytes returns the total number of bytes currently in the free list.
func (h *Heap) FreeBytes() int { return h.freeBytes }

// IsEmpty reports whether no allocations are currently live.
func (h *Heap) IsEmpty() bool { return h.freeBytes == h.size }

// Bottom returns the granularity-aligned base address of the managed region.
func (h *Heap) Bottom() unsafe.Pointer { return h.data }

// FreeRegionsCount returns the number of distinct free blocks. Adjacent free
// blocks never coexist, so this is also the number of maximal free runs.
func (h *Heap) FreeRegionsCount() int {
	var count int
	for offset := h.holes; offset != nullOffset; offset = h.holeAt(offset).next {
		count++
	}
	return count
}

// VisitFreeRegions calls the provided callback once per free block in
// ascending address order, passing the block's offset from the region base
// and its size. Returning an error stops the walk.
func (h *Heap) VisitFreeRegions(visit func(offset, size int) error) error {
	for offset := h.holes; offset != nullOffset; offset = h.holeAt(offset).next {
		if err := visit(offset, h.holeAt(offset).size); err != nil {
			return err
		}
	}
	return nil
}

// Validate performs internal consistency checks on the free list. When the
// heap is functioning correctly it cannot return an error; it exists to
// diagnose implementation bugs and caller contract violations, and is run at
// the top of every mutating call in debug_heap_alloc builds.
func (h *Heap) Validate() error {
	if h.data == nil {
		return errors.New("heap has not been initialized")
	}
	if h.freeBytes > h.size {
		return errors.Errorf("heap records %d free bytes in a %d byte region", h.freeBytes, h.size)
	}

	maxRegions := h.size / headerSize
	var total, regions, prevEnd int

	for offset := h.holes; offset != nullOffset; offset = h.holeAt(offset).next {
		if offset < 0 || offset >= h.size {
			return errors.Errorf("free block offset %d is outside the managed region", offset)
		}
		if offset%headerSize != 0 {
			return errors.Errorf("free block offset %d is not aligned to the header granularity", offset)
		}

		block := h.holeAt(offset)
		if block.size < headerSize {
			return errors.Errorf("free block at offset %d is smaller than a block header", offset)
		}
		if block.size%headerSize != 0 {
			return errors.Errorf("free block at offset %d has unaligned size %d", offset, block.size)
		}
		if offset+block.size > h.size {
			return errors.Errorf("free block at offset %d extends past the end of the region", offset)
		}

		if regions > 0 {
			if offset < prevEnd {
				return errors.Errorf("free list is not in ascending address order at offset %d", offset)
			}
			if offset == prevEnd {
				return errors.Errorf("adjacent free blocks at offset %d were not coalesced", offset)
			}
		}

		prevEnd = offset + block.size
		total += block.size

		regions++
		if regions > maxRegions {
			return errors.New("free list contains a cycle")
		}
	}

	if total != h.freeBytes {
		return errors.Errorf("free list holds %d bytes but the heap records %d free", total, h.freeBytes)
	}

	return nil
}
