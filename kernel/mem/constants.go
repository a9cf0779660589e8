// Package mem defines the page geometry shared by the physical memory
// allocators and the size helpers used to express allocation requests.
package mem

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// MaxPageOrder defines the number of buddy orders. The largest block a
	// page allocator can hand out in one request spans 1 << (MaxPageOrder-1)
	// pages.
	MaxPageOrder = PageOrder(9)

	// MaxBlockPages is the page count of a top-order block.
	MaxBlockPages = 1 << (MaxPageOrder - 1)
)
