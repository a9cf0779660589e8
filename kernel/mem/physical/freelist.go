package physical

import "gopherkern/kernel/mem"

// The free-list set is a collection of circular doubly-linked lists, one per
// buddy order, threaded through the link field of the page records. The list
// heads are not stored in the metadata table; the link index pageCount+order
// refers to the head of the list for that order.

// headIndex returns the link index of the list head for the given order.
func (alloc *BuddyAllocator) headIndex(order mem.PageOrder) uint32 {
	return alloc.layout.PageCount + uint32(order)
}

// link returns the list link stored at the given link index.
func (alloc *BuddyAllocator) link(index uint32) *listLink {
	if index < alloc.layout.PageCount {
		return &alloc.records[index].link
	}

	return &alloc.heads[index-alloc.layout.PageCount]
}

// listInit turns the link at index into an empty (self-referencing) list.
func (alloc *BuddyAllocator) listInit(index uint32) {
	l := alloc.link(index)
	l.next, l.prev = index, index
}

// listAddTail appends the record at index to the tail of the list for order.
func (alloc *BuddyAllocator) listAddTail(index uint32, order mem.PageOrder) {
	var (
		headIdx = alloc.headIndex(order)
		head    = alloc.link(headIdx)
		node    = alloc.link(index)
		tailIdx = head.prev
	)

	alloc.link(tailIdx).next = index
	node.prev = tailIdx
	node.next = headIdx
	head.prev = index
}

// listDel unlinks the record at index from whichever list it belongs to and
// leaves it self-referencing.
func (alloc *BuddyAllocator) listDel(index uint32) {
	node := alloc.link(index)
	alloc.link(node.prev).next = node.next
	alloc.link(node.next).prev = node.prev
	node.next, node.prev = index, index
}

// listFront returns the index of the oldest block in the list for order.
func (alloc *BuddyAllocator) listFront(order mem.PageOrder) (uint32, bool) {
	headIdx := alloc.headIndex(order)
	next := alloc.link(headIdx).next
	return next, next != headIdx
}

// fileBlock marks the record at index as the head of a free block with the
// given order and appends it to the matching free list.
func (alloc *BuddyAllocator) fileBlock(index uint32, order mem.PageOrder) {
	alloc.records[index].Order = int32(order)
	alloc.listAddTail(index, order)
	alloc.freeBlocks[order]++
	alloc.freePages += order.Pages()
}

// unfileBlock removes the free block headed by the record at index from the
// list for order. The record keeps its order value.
func (alloc *BuddyAllocator) unfileBlock(index uint32, order mem.PageOrder) {
	alloc.listDel(index)
	alloc.freeBlocks[order]--
	alloc.freePages -= order.Pages()
}
