package physical

import (
	"gopherkern/kernel"
	"gopherkern/kernel/kfmt"
	"gopherkern/kernel/mem"
)

var errVerifyFailed = &kernel.Error{Module: "buddy", Message: "free list invariants violated"}

// Block describes a free block.
type Block struct {
	Addr  uintptr
	Order mem.PageOrder
}

// FreeBlocks returns a snapshot of the free lists. Blocks are listed by
// ascending order and, within each order, from the front of the list (the
// next block that AllocPages would return) to the back.
func (alloc *BuddyAllocator) FreeBlocks() []Block {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	var blocks []Block
	for order := mem.PageOrder(0); order < mem.MaxPageOrder; order++ {
		headIdx := alloc.headIndex(order)
		for index := alloc.link(headIdx).next; index != headIdx; index = alloc.link(index).next {
			blocks = append(blocks, Block{Addr: alloc.records[index].PhysAddr, Order: order})
		}
	}

	return blocks
}

// Verify walks every free list and checks that list membership, block
// orders, alignment, flags and counters agree with each other and that no
// page is covered by more than one free block. Each violation is reported
// through kfmt.
func (alloc *BuddyAllocator) Verify() *kernel.Error {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	var (
		failed    bool
		freePages uint32
		covered   = make([]bool, alloc.layout.PageCount)
		report    = func(format string, args ...interface{}) {
			failed = true
			kfmt.Printf("[buddy] verify: "+format+"\n", args...)
		}
	)

	for order := mem.PageOrder(0); order < mem.MaxPageOrder; order++ {
		var (
			headIdx = alloc.headIndex(order)
			count   uint32
			prev    = headIdx
		)

		for index := alloc.link(headIdx).next; index != headIdx; prev, index = index, alloc.link(index).next {
			if index >= alloc.layout.PageCount {
				report("order %d list links to foreign index %d", order, index)
				break
			}

			if count > alloc.layout.PageCount {
				report("order %d list does not terminate", order)
				break
			}
			count++

			rec := &alloc.records[index]
			switch {
			case alloc.link(index).prev != prev:
				report("order %d list has broken back link at page %d", order, index)
			case rec.Order != int32(order):
				report("page %d is filed at order %d but has order %d", index, order, rec.Order)
			case rec.IsBusy():
				report("page %d is filed at order %d but is marked busy", index, order)
			case index&(order.Pages()-1) != 0:
				report("page %d is not aligned to order %d", index, order)
			case index+order.Pages() > alloc.layout.PageCount:
				report("block at page %d with order %d overruns the table", index, order)
			}

			for page := index; page < index+order.Pages() && page < alloc.layout.PageCount; page++ {
				if covered[page] {
					report("page %d is covered by more than one free block", page)
				}
				covered[page] = true

				if page != index && alloc.records[page].IsHead() {
					report("interior page %d of free block %d has order %d", page, index, alloc.records[page].Order)
				}
			}
		}

		if count != alloc.freeBlocks[order] {
			report("order %d list holds %d blocks; counter says %d", order, count, alloc.freeBlocks[order])
		}
		freePages += count * order.Pages()
	}

	if freePages != alloc.freePages {
		report("free lists hold %d pages; counter says %d", freePages, alloc.freePages)
	}

	if failed {
		return errVerifyFailed
	}

	return nil
}
