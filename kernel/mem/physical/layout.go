package physical

import (
	"math"
	"unsafe"

	"gopherkern/kernel"
	"gopherkern/kernel/mem"
)

var (
	errKernelEndOutOfRange = &kernel.Error{Module: "buddy", Message: "kernel image end is outside physical memory"}
	errNoUsableMemory      = &kernel.Error{Module: "buddy", Message: "not enough memory for a single page and its metadata"}
	errMisalignedMemory    = &kernel.Error{Module: "buddy", Message: "physical memory region is not page aligned"}
	errTooManyPages        = &kernel.Error{Module: "buddy", Message: "physical memory region has more pages than page indices can address"}
)

const (
	recordSize  = uintptr(unsafe.Sizeof(PageRecord{}))
	recordAlign = uintptr(unsafe.Alignof(PageRecord{}))
)

// Memory describes a contiguous region of physical memory managed by the
// buddy allocator.
type Memory interface {
	// Base returns the physical address of the first byte of the region.
	Base() uintptr

	// Bytes returns the contents of the region.
	Bytes() []byte
}

// Layout describes the placement of the paged region and of the page
// metadata table inside physical memory. The table occupies the tail of the
// region, right after the last managed page:
//
//	MemStart  PagingStart           PagingEnd  TableStart        MemEnd
//	   |  pad   | page 0 | ... | page N-1 |  pad  | rec 0 | ... | rec N-1 |
type Layout struct {
	// MemStart is the first byte after the kernel image.
	MemStart uintptr

	// MemEnd is the first byte past the end of physical memory.
	MemEnd uintptr

	// PagingStart is MemStart rounded up to a page boundary.
	PagingStart uintptr

	// PagingEnd is the first byte past the last managed page.
	PagingEnd uintptr

	// TableStart is the physical address of the first page record.
	TableStart uintptr

	// PageCount is the number of managed pages.
	PageCount uint32
}

// TopOrderGroups returns the number of full top-order blocks that fit in the
// paged region.
func (l Layout) TopOrderGroups() uint32 {
	return l.PageCount / mem.MaxBlockPages
}

// computeLayout calculates the metadata table placement for a memory region
// that starts at base, spans size bytes and hosts a kernel image that ends at
// kernelEnd.
func computeLayout(base, size, kernelEnd uintptr) (Layout, *kernel.Error) {
	var (
		layout         Layout
		pageSizeMinus1 = uintptr(mem.PageSize - 1)
	)

	if base&pageSizeMinus1 != 0 {
		return layout, errMisalignedMemory
	}

	layout.MemStart = kernelEnd
	layout.MemEnd = base + size
	if kernelEnd < base || kernelEnd >= layout.MemEnd {
		return layout, errKernelEndOutOfRange
	}

	layout.PagingStart = (kernelEnd + pageSizeMinus1) &^ pageSizeMinus1
	if layout.PagingStart >= layout.MemEnd {
		return layout, errNoUsableMemory
	}

	// Each managed page costs PageSize bytes plus a record; reserve enough
	// slack so the table start can be aligned down without overlapping the
	// last page.
	availBytes := layout.MemEnd - layout.PagingStart
	if availBytes <= recordAlign-1 {
		return layout, errNoUsableMemory
	}

	pageCount := (availBytes - (recordAlign - 1)) / (uintptr(mem.PageSize) + recordSize)
	if pageCount == 0 {
		return layout, errNoUsableMemory
	}

	// List heads are indexed right after the last page record.
	if uint64(pageCount) > math.MaxUint32-uint64(mem.MaxPageOrder) {
		return layout, errTooManyPages
	}

	layout.PageCount = uint32(pageCount)
	layout.PagingEnd = layout.PagingStart + pageCount*uintptr(mem.PageSize)
	layout.TableStart = (layout.MemEnd - pageCount*recordSize) &^ (recordAlign - 1)

	return layout, nil
}
