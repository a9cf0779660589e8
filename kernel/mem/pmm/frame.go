// Package pmm exposes the physical page allocator to the rest of the kernel.
package pmm

import (
	"math"

	"gopherkern/kernel/mem"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns a pointer to the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. Addresses that are not page-aligned
// are rounded down to the frame that contains them.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr &^ uintptr(mem.PageSize-1)) >> mem.PageShift)
}
