// Package kheap implements the kernel heap on top of the buddy page
// allocator. Small requests are served from per size-class caches that carve
// single pages into equally sized slots; larger requests are rounded up to a
// power-of-two page run.
package kheap

import (
	"gopherkern/kernel"
	"gopherkern/kernel/kfmt"
	"gopherkern/kernel/mem"
	"gopherkern/kernel/mem/physical"
	"gopherkern/kernel/sync"
)

const (
	// MinObjectSize is the slot size of the smallest cache.
	MinObjectSize = mem.Size(16)

	// MaxObjectSize is the slot size of the largest cache. Requests above
	// this size are served by page runs.
	MaxObjectSize = mem.Size(2048)

	numCaches = 8
)

var (
	errZeroSize    = &kernel.Error{Module: "kheap", Message: "zero-sized allocation"}
	errTooLarge    = &kernel.Error{Module: "kheap", Message: "allocation exceeds the largest page run"}
	errInvalidFree = &kernel.Error{Module: "kheap", Message: "address was not returned by Alloc"}
)

// PageAllocator is implemented by physical page allocators that can back the
// heap.
type PageAllocator interface {
	AllocPages(order mem.PageOrder) (*physical.PageRecord, *kernel.Error)
	FreePages(rec *physical.PageRecord, order mem.PageOrder) *kernel.Error
	AddressToRecord(addr uintptr) (*physical.PageRecord, *kernel.Error)
	Bytes(rec *physical.PageRecord) []byte
}

type cache struct {
	// id is stored in the CacheID field of every page owned by the cache.
	id       uint32
	slotSize mem.Size
	free     []uintptr

	// pages maps the address of each page owned by the cache to the
	// number of slots handed out from it.
	pages map[uintptr]uint32
}

type allocation struct {
	// cache is nil for page runs.
	cache *cache
	rec   *physical.PageRecord
	order mem.PageOrder
}

// Stats describes the heap usage.
type Stats struct {
	LiveObjects int
	LiveBytes   mem.Size
	CachePages  int
	RunPages    int
}

// Heap is a kernel heap backed by a page allocator.
type Heap struct {
	lock sync.Spinlock

	pages  PageAllocator
	caches [numCaches]cache
	live   map[uintptr]allocation
	stats  Stats
}

// New creates a heap that obtains its memory from pages.
func New(pages PageAllocator) *Heap {
	h := &Heap{
		pages: pages,
		live:  make(map[uintptr]allocation),
	}

	for index := range h.caches {
		h.caches[index] = cache{
			id:       uint32(index + 1),
			slotSize: MinObjectSize << uint(index),
			pages:    make(map[uintptr]uint32),
		}
	}

	return h
}

// Alloc reserves a zeroed block of at least size bytes and returns its
// address.
func (h *Heap) Alloc(size mem.Size) (uintptr, *kernel.Error) {
	if size == 0 {
		return 0, errZeroSize
	}

	h.lock.Acquire()
	defer h.lock.Release()

	if size > MaxObjectSize {
		return h.allocRun(size)
	}

	c := h.cacheFor(size)
	if len(c.free) == 0 {
		if err := h.grow(c); err != nil {
			return 0, err
		}
	}

	addr := c.free[len(c.free)-1]
	pageAddr := addr &^ uintptr(mem.PageSize-1)

	rec, err := h.pages.AddressToRecord(pageAddr)
	if err != nil {
		kfmt.Printf("[kheap] cache slot 0x%x is not backed by a page: %s\n", addr, err.Message)
		return 0, err
	}

	c.free = c.free[:len(c.free)-1]
	c.pages[pageAddr]++
	offset := addr - pageAddr
	mem.Memset(h.pages.Bytes(rec)[offset:offset+uintptr(c.slotSize)], 0)

	h.live[addr] = allocation{cache: c, rec: rec}
	h.stats.LiveObjects++
	h.stats.LiveBytes += c.slotSize
	return addr, nil
}

// Free returns a block obtained by Alloc to the heap. Addresses that were not
// returned by Alloc are reported and otherwise ignored.
func (h *Heap) Free(addr uintptr) *kernel.Error {
	h.lock.Acquire()
	defer h.lock.Release()

	a, ok := h.live[addr]
	if !ok {
		kfmt.Printf("[kheap] rejected free of address 0x%x: %s\n", addr, errInvalidFree.Message)
		return errInvalidFree
	}
	delete(h.live, addr)
	h.stats.LiveObjects--

	if a.cache == nil {
		h.stats.LiveBytes -= a.order.Size()
		h.stats.RunPages -= int(a.order.Pages())
		return h.pages.FreePages(a.rec, a.order)
	}

	h.stats.LiveBytes -= a.cache.slotSize
	a.cache.pages[a.rec.PhysAddr]--
	a.cache.free = append(a.cache.free, addr)
	return nil
}

// Shrink returns every cache page without live objects to the page
// allocator and reports the number of released pages.
func (h *Heap) Shrink() int {
	h.lock.Acquire()
	defer h.lock.Release()

	var released int
	for index := range h.caches {
		c := &h.caches[index]

		var empty []uintptr
		for pageAddr, inUse := range c.pages {
			if inUse == 0 {
				empty = append(empty, pageAddr)
			}
		}
		if len(empty) == 0 {
			continue
		}

		isEmpty := make(map[uintptr]bool, len(empty))
		for _, pageAddr := range empty {
			isEmpty[pageAddr] = true
		}

		kept := c.free[:0]
		for _, addr := range c.free {
			if !isEmpty[addr&^uintptr(mem.PageSize-1)] {
				kept = append(kept, addr)
			}
		}
		c.free = kept

		for _, pageAddr := range empty {
			delete(c.pages, pageAddr)

			rec, err := h.pages.AddressToRecord(pageAddr)
			if err != nil {
				continue
			}
			rec.Flags &^= physical.FlagInCache
			rec.CacheID = 0
			if err = h.pages.FreePages(rec, 0); err == nil {
				released++
			}
		}
		h.stats.CachePages -= len(empty)
	}

	return released
}

// Stats returns a snapshot of the heap usage.
func (h *Heap) Stats() Stats {
	h.lock.Acquire()
	defer h.lock.Release()
	return h.stats
}

// SlotSize returns the number of bytes reserved for a request of the given
// size.
func SlotSize(size mem.Size) mem.Size {
	if size > MaxObjectSize {
		return size.Order().Size()
	}

	slot := MinObjectSize
	for slot < size {
		slot <<= 1
	}
	return slot
}

func (h *Heap) cacheFor(size mem.Size) *cache {
	index := 0
	for MinObjectSize<<uint(index) < size {
		index++
	}

	return &h.caches[index]
}

// grow adds a fresh page to the cache and splits it into slots.
func (h *Heap) grow(c *cache) *kernel.Error {
	rec, err := h.pages.AllocPages(0)
	if err != nil {
		kfmt.Printf("[kheap] unable to grow cache %d (%d byte slots): %s\n", c.id, c.slotSize, err.Message)
		return err
	}

	rec.Flags |= physical.FlagInCache
	rec.CacheID = c.id
	c.pages[rec.PhysAddr] = 0

	// Slots are pushed in reverse so that Alloc hands out ascending
	// addresses.
	for offset := uintptr(mem.PageSize) - uintptr(c.slotSize); ; offset -= uintptr(c.slotSize) {
		c.free = append(c.free, rec.PhysAddr+offset)
		if offset == 0 {
			break
		}
	}

	h.stats.CachePages++
	return nil
}

func (h *Heap) allocRun(size mem.Size) (uintptr, *kernel.Error) {
	order := size.Order()
	if !order.Valid() {
		return 0, errTooLarge
	}

	rec, err := h.pages.AllocPages(order)
	if err != nil {
		kfmt.Printf("[kheap] unable to allocate %d byte run: %s\n", size, err.Message)
		return 0, err
	}

	mem.Memset(h.pages.Bytes(rec), 0)

	h.live[rec.PhysAddr] = allocation{rec: rec, order: order}
	h.stats.LiveObjects++
	h.stats.LiveBytes += order.Size()
	h.stats.RunPages += int(order.Pages())
	return rec.PhysAddr, nil
}
