// Package physical implements a buddy allocator for physical memory pages.
//
// The allocator manages the memory between the end of the kernel image and
// the end of physical memory. Each managed page is described by a PageRecord
// stored in a metadata table that is carved out of the tail of the managed
// region. Free blocks are tracked by one free list per order; a block of
// order k spans 1 << k contiguous pages and its buddy is located by flipping
// bit k of its page index.
package physical

import (
	"unsafe"

	"gopherkern/kernel"
	"gopherkern/kernel/kfmt"
	"gopherkern/kernel/mem"
	"gopherkern/kernel/sync"
)

var (
	errInvalidOrder     = &kernel.Error{Module: "buddy", Message: "requested page order is out of range"}
	errOutOfMemory      = &kernel.Error{Module: "buddy", Message: "no free block at or above the requested order"}
	errAddrNotManaged   = &kernel.Error{Module: "buddy", Message: "address is outside the managed region"}
	errRecordNotManaged = &kernel.Error{Module: "buddy", Message: "page record does not belong to the metadata table"}
	errNotBlockHead     = &kernel.Error{Module: "buddy", Message: "page record is not a block head"}
	errDoubleFree       = &kernel.Error{Module: "buddy", Message: "block is not allocated"}
	errOrderMismatch    = &kernel.Error{Module: "buddy", Message: "free order does not match allocation order"}
	errCorruptedList    = &kernel.Error{Module: "buddy", Message: "free list entry does not match its list order"}

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic
)

// BuddyAllocator implements a power-of-two physical page allocator.
type BuddyAllocator struct {
	lock sync.Spinlock

	layout Layout
	base   uintptr
	memory []byte

	// records is the page metadata table. Its backing storage is the tail
	// of memory, not the Go heap.
	records []PageRecord

	heads [mem.MaxPageOrder]listLink

	// freeBlocks tracks the number of blocks in each free list.
	freeBlocks [mem.MaxPageOrder]uint32

	// freePages tracks the number of pages across all free lists.
	freePages uint32
}

// New creates a buddy allocator for the supplied physical memory region. All
// memory below kernelEnd is treated as part of the kernel image and is never
// handed out.
func New(region Memory, kernelEnd uintptr) (*BuddyAllocator, *kernel.Error) {
	alloc := &BuddyAllocator{}
	if err := alloc.InitPageMap(region, kernelEnd); err != nil {
		return nil, err
	}

	return alloc, nil
}

// InitPageMap computes the placement of the page metadata table, overlays it
// on top of physical memory and files every managed page into the free
// lists. Pages are grouped into top-order blocks; the remainder that does not
// fill a whole top-order block is filed page by page into the order 0 list.
func (alloc *BuddyAllocator) InitPageMap(region Memory, kernelEnd uintptr) *kernel.Error {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	var (
		base   = region.Base()
		memory = region.Bytes()
	)

	layout, err := computeLayout(base, uintptr(len(memory)), kernelEnd)
	if err != nil {
		return err
	}

	tableOffset := layout.TableStart - base
	if uintptr(unsafe.Pointer(&memory[tableOffset]))%recordAlign != 0 {
		return errMisalignedMemory
	}

	alloc.layout = layout
	alloc.base = base
	alloc.memory = memory
	alloc.records = unsafe.Slice((*PageRecord)(unsafe.Pointer(&memory[tableOffset])), layout.PageCount)
	alloc.freePages = 0
	for order := mem.PageOrder(0); order < mem.MaxPageOrder; order++ {
		alloc.freeBlocks[order] = 0
		alloc.listInit(alloc.headIndex(order))
	}

	for index := uint32(0); index < layout.PageCount; index++ {
		alloc.records[index] = PageRecord{
			PhysAddr: layout.PagingStart + uintptr(index)<<mem.PageShift,
			Flags:    FlagAvailable,
			Order:    interiorPage,
		}
		alloc.listInit(index)
	}

	// Only the first page of each top-order group is filed; the rest of
	// the group is implicitly covered by its head.
	topOrder := mem.MaxPageOrder - 1
	groupedPages := layout.TopOrderGroups() * mem.MaxBlockPages
	for index := uint32(0); index < groupedPages; index += mem.MaxBlockPages {
		alloc.fileBlock(index, topOrder)
	}

	for index := groupedPages; index < layout.PageCount; index++ {
		alloc.fileBlock(index, 0)
	}

	kfmt.Printf("[buddy] paging region: 0x%x - 0x%x, pages: %d, top-order blocks: %d, leftover pages: %d\n",
		layout.PagingStart, layout.PagingEnd, layout.PageCount,
		layout.TopOrderGroups(), layout.PageCount-groupedPages,
	)
	kfmt.Printf("[buddy] page metadata table at 0x%x - 0x%x (%d bytes per record)\n",
		layout.TableStart, layout.TableStart+uintptr(layout.PageCount)*recordSize, recordSize,
	)

	return nil
}

// AllocPages reserves a block of 1 << order contiguous pages and returns the
// record for its first page. The smallest non-empty free list at or above
// order supplies the block; any surplus is split in halves whose upper parts
// are returned to the free lists.
//
// AllocPages returns errOutOfMemory if no list at or above order has a free
// block. Callers are expected to handle this condition.
func (alloc *BuddyAllocator) AllocPages(order mem.PageOrder) (*PageRecord, *kernel.Error) {
	if !order.Valid() {
		return nil, errInvalidOrder
	}

	alloc.lock.Acquire()
	defer alloc.lock.Release()

	for curOrder := order; curOrder < mem.MaxPageOrder; curOrder++ {
		index, ok := alloc.listFront(curOrder)
		if !ok {
			continue
		}

		if alloc.records[index].Order != int32(curOrder) {
			panicFn(errCorruptedList)
			return nil, errCorruptedList
		}

		alloc.unfileBlock(index, curOrder)

		// Keep the lower half and release the upper half until the
		// block has the requested size.
		for step := curOrder; step > order; {
			step--
			alloc.fileBlock(index+step.Pages(), step)
		}

		head := &alloc.records[index]
		head.Order = int32(order)
		head.Flags |= FlagBuddyBusy
		for page := index; page < index+order.Pages(); page++ {
			alloc.records[page].Flags |= FlagDirty
		}

		return head, nil
	}

	return nil, errOutOfMemory
}

// FreePages returns a block previously obtained by AllocPages with the same
// order to the allocator. The block is merged with its buddy for as long as
// the buddy is free and has the same order.
//
// Attempts to free a record that is not an allocated block head with the
// supplied order are reported and otherwise ignored.
func (alloc *BuddyAllocator) FreePages(rec *PageRecord, order mem.PageOrder) *kernel.Error {
	if !order.Valid() {
		return alloc.reportMisuse(rec, order, errInvalidOrder)
	}

	alloc.lock.Acquire()
	defer alloc.lock.Release()

	index, err := alloc.indexOf(rec)
	switch {
	case err != nil:
	case !rec.IsHead():
		err = errNotBlockHead
	case !rec.IsBusy():
		err = errDoubleFree
	case rec.Order != int32(order):
		err = errOrderMismatch
	}

	if err != nil {
		return alloc.reportMisuse(rec, order, err)
	}

	for page := index; page < index+order.Pages(); page++ {
		alloc.records[page].Flags &^= FlagDirty
	}
	rec.Flags &^= FlagBuddyBusy

	for ; order < mem.MaxPageOrder-1; order++ {
		buddyIndex := index ^ order.Pages()
		if buddyIndex >= alloc.layout.PageCount {
			break
		}

		buddy := &alloc.records[buddyIndex]
		if buddy.IsBusy() || buddy.Order != int32(order) {
			break
		}

		alloc.unfileBlock(buddyIndex, order)

		// The lower of the two buddies heads the merged block.
		if buddyIndex < index {
			alloc.records[index].Order = interiorPage
			index = buddyIndex
		} else {
			buddy.Order = interiorPage
		}
	}

	alloc.fileBlock(index, order)
	return nil
}

// AddressToRecord returns the page record describing the page that contains
// addr.
func (alloc *BuddyAllocator) AddressToRecord(addr uintptr) (*PageRecord, *kernel.Error) {
	if addr < alloc.layout.PagingStart {
		return nil, errAddrNotManaged
	}

	index := (addr - alloc.layout.PagingStart) >> mem.PageShift
	if index >= uintptr(alloc.layout.PageCount) {
		return nil, errAddrNotManaged
	}

	return &alloc.records[index], nil
}

// Bytes returns the memory covered by the block headed by rec. It returns
// nil if rec is not a block head managed by this allocator.
func (alloc *BuddyAllocator) Bytes(rec *PageRecord) []byte {
	if _, err := alloc.indexOf(rec); err != nil {
		return nil
	}

	order, ok := rec.BlockOrder()
	if !ok {
		return nil
	}

	offset := rec.PhysAddr - alloc.base
	return alloc.memory[offset : offset+uintptr(order.Size()) : offset+uintptr(order.Size())]
}

// Layout returns the placement of the paged region and the metadata table.
func (alloc *BuddyAllocator) Layout() Layout {
	return alloc.layout
}

// FreeBlockCount returns the number of free blocks with the given order.
func (alloc *BuddyAllocator) FreeBlockCount(order mem.PageOrder) uint32 {
	if !order.Valid() {
		return 0
	}

	alloc.lock.Acquire()
	defer alloc.lock.Release()
	return alloc.freeBlocks[order]
}

// FreePageCount returns the number of pages across all free blocks.
func (alloc *BuddyAllocator) FreePageCount() uint32 {
	alloc.lock.Acquire()
	defer alloc.lock.Release()
	return alloc.freePages
}

// indexOf returns the metadata table index of rec.
func (alloc *BuddyAllocator) indexOf(rec *PageRecord) (uint32, *kernel.Error) {
	if rec == nil || rec.PhysAddr < alloc.layout.PagingStart {
		return 0, errRecordNotManaged
	}

	index := (rec.PhysAddr - alloc.layout.PagingStart) >> mem.PageShift
	if index >= uintptr(alloc.layout.PageCount) || &alloc.records[index] != rec {
		return 0, errRecordNotManaged
	}

	return uint32(index), nil
}

// reportMisuse logs a rejected free request and returns err.
func (alloc *BuddyAllocator) reportMisuse(rec *PageRecord, order mem.PageOrder, err *kernel.Error) *kernel.Error {
	var addr uintptr
	if rec != nil {
		addr = rec.PhysAddr
	}

	kfmt.Printf("[buddy] rejected free of block 0x%x with order %d: %s\n", addr, order, err.Message)
	return err
}
