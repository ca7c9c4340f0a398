package guarded

import "sync"

// CriticalSection is the mutual-exclusion primitive the allocator runs its
// heap operations under. On the bare-metal single-core targets this package
// is written for there is no scheduler to block against, so implementations
// do not wait: Protect masks interrupt delivery on the core, runs fn, and
// restores the previous interrupt-enable state on the way out, including
// when fn panics.
//
// Hard requirements on implementations:
//
//   - Protect must never suspend or spin. The only concurrent actor on the
//     target is the interrupt mechanism, and masking it is both necessary
//     and sufficient for exclusion.
//   - A nested Protect on the same core must neither deadlock nor lose the
//     previously saved interrupt state. An interrupt handler that allocates
//     is safe only because of this.
type CriticalSection interface {
	Protect(fn func())
}

// MutexSection implements CriticalSection for hosted targets, where a plain
// mutex stands in for interrupt masking and calling goroutines genuinely can
// block. Nested Protect calls cannot occur here: nothing preempts fn on a
// hosted target, and the allocator itself never re-enters.
//
// The zero value is ready to use.
type MutexSection struct {
	mu sync.Mutex
}

func (s *MutexSection) Protect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}
