package mem

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Order returns the smallest PageOrder that is suitable for storing a block of this size.
// Depending on the size, Order() may return a page order that is not smaller than MaxPageOrder.
func (s Size) Order() PageOrder {
	var order = PageOrder(0)
	for ; PageSize<<order < s; order++ {
	}

	return order
}

// Pages returns the number of pages that are required for storing this size.
func (s Size) Pages() uint32 {
	pageSizeMinus1 := PageSize - 1
	return uint32(((s + pageSizeMinus1) &^ pageSizeMinus1) >> PageShift)
}

// PageOrder represents a power-of-two multiple of the base page size and is
// used as an argument to page-based memory allocators.
//
// PageOrder(0) refers to a page with size PageSize << 0
// PageOrder(1) refers to a page with size PageSize << 1
// ...
type PageOrder uint8

// Pages returns the number of pages spanned by a block of this order.
func (o PageOrder) Pages() uint32 {
	return 1 << o
}

// Size returns the size in bytes of a block of this order.
func (o PageOrder) Size() Size {
	return PageSize << o
}

// Valid returns true if the order can be requested from a page allocator.
func (o PageOrder) Valid() bool {
	return o < MaxPageOrder
}
