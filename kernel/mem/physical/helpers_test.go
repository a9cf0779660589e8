package physical

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gopherkern/internal/hostmem"
	"gopherkern/kernel/mem"
)

const (
	testMemBase   = uintptr(0x100000)
	testKernelEnd = testMemBase + 0x1234
)

// testMemory returns a memory region whose layout manages exactly pageCount
// pages when the kernel image ends at testKernelEnd.
func testMemory(pageCount uint32) *hostmem.Region {
	pagingStart := (testKernelEnd + uintptr(mem.PageSize-1)) &^ uintptr(mem.PageSize-1)
	size := (pagingStart - testMemBase) + uintptr(pageCount)*(uintptr(mem.PageSize)+recordSize) + recordAlign - 1

	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0xf0
	}

	return hostmem.FromBytes(testMemBase, buf)
}

// newTestAllocator returns an allocator that manages topGroups top-order
// blocks followed by leftover order-0 pages.
func newTestAllocator(t *testing.T, topGroups, leftover uint32) *BuddyAllocator {
	t.Helper()

	pageCount := topGroups*mem.MaxBlockPages + leftover
	alloc, err := New(testMemory(pageCount), testKernelEnd)
	require.Nil(t, err)
	require.Equal(t, pageCount, alloc.Layout().PageCount)
	requireConsistent(t, alloc)

	return alloc
}

func requireConsistent(t *testing.T, alloc *BuddyAllocator) {
	t.Helper()
	require.Nil(t, alloc.Verify(), "free list invariants violated")
}

func pageAddr(alloc *BuddyAllocator, index uint32) uintptr {
	return alloc.Layout().PagingStart + uintptr(index)<<mem.PageShift
}
