package freelist

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"
)

// LayoutJson populates a json object with the current shape of the heap: the
// region size, the free byte total, and every free block with its offset from
// the region base. Diagnostic use only; walking the free list is linear in
// the number of free blocks.
func (h *Heap) LayoutJson(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(h.size)
	json.Name("FreeBytes").Int(h.freeBytes)
	json.Name("FreeRegions").Int(h.FreeRegionsCount())

	blocks := json.Name("FreeBlocks").Array()
	defer blocks.End()

	_ = h.VisitFreeRegions(func(offset, size int) error {
		obj := blocks.Object()
		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		obj.End()
		return nil
	})
}

// DebugLogFreeRegions emits one debug-level log line per free block. Intended
// for interactive debugging of fragmentation; never called on a hot path.
func (h *Heap) DebugLogFreeRegions(logger *slog.Logger) {
	_ = h.VisitFreeRegions(func(offset, size int) error {
		logger.Debug("free region", slog.Int("offset", offset), slog.Int("size", size))
		return nil
	})
}
