package physical

import "gopherkern/kernel/mem"

// PageFlag is a bit-set describing the state of a page frame.
type PageFlag uint32

const (
	// FlagAvailable is the zero value; a page with no other flag set is
	// not in use by anyone.
	FlagAvailable PageFlag = 0

	// FlagDirty marks every page of an allocated block.
	FlagDirty PageFlag = 0x01

	// FlagProtected marks pages that must never be handed out.
	FlagProtected PageFlag = 0x02

	// FlagBuddyBusy is set on the head record of an allocated block.
	FlagBuddyBusy PageFlag = 0x04

	// FlagInCache marks pages owned by a kernel heap object cache.
	FlagInCache PageFlag = 0x08
)

// String returns a compact representation of the flag set, e.g. "DB".
func (f PageFlag) String() string {
	if f == FlagAvailable {
		return "-"
	}

	var (
		buf   [4]byte
		n     int
		names = [...]struct {
			flag PageFlag
			ch   byte
		}{
			{FlagDirty, 'D'},
			{FlagProtected, 'P'},
			{FlagBuddyBusy, 'B'},
			{FlagInCache, 'C'},
		}
	)

	for _, entry := range names {
		if f&entry.flag != 0 {
			buf[n] = entry.ch
			n++
		}
	}

	return string(buf[:n])
}

// interiorPage is the order value carried by every page that is not the
// first page of a block.
const interiorPage = int32(-1)

// listLink places a record in a circular doubly-linked free list. Links are
// indices into the page metadata table; indices past the end of the table
// refer to the per-order list heads.
type listLink struct {
	next, prev uint32
}

// PageRecord describes a single physical page frame. Records live in the
// page metadata table which is overlaid on top of physical memory, so the
// structure must not contain any Go pointers.
//
// Only the first record of a block (the block head) carries meaningful
// Flags and Order values for the whole block; the remaining records of the
// block have Order set to -1.
type PageRecord struct {
	// PhysAddr is the physical address of the page described by this record.
	PhysAddr uintptr

	// Flags tracks the page state.
	Flags PageFlag

	// Order is the buddy order of the block headed by this record or -1
	// if this record describes an interior page of a larger block.
	Order int32

	// RefCount is reserved for page sharing and is not maintained by the
	// buddy allocator.
	RefCount uint32

	// CacheID identifies the kernel heap cache that owns this page. A zero
	// value means that the page is not owned by a cache.
	CacheID uint32

	link listLink
}

// IsHead returns true if this record is the first page of a block.
func (r *PageRecord) IsHead() bool {
	return r.Order != interiorPage
}

// IsBusy returns true if this record heads an allocated block.
func (r *PageRecord) IsBusy() bool {
	return r.Flags&FlagBuddyBusy != 0
}

// BlockOrder returns the order of the block headed by this record. The
// second return value is false for interior pages.
func (r *PageRecord) BlockOrder() (mem.PageOrder, bool) {
	if r.Order < 0 {
		return 0, false
	}

	return mem.PageOrder(r.Order), true
}
