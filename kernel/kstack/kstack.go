// Package kstack provides kernel stacks backed by buddy allocator blocks.
// Stacks grow downwards: Push stores a little-endian machine word below the
// current stack pointer.
package kstack

import (
	"encoding/binary"

	"gopherkern/kernel"
	"gopherkern/kernel/kfmt"
	"gopherkern/kernel/mem"
	"gopherkern/kernel/mem/physical"
)

const (
	// StackOrder is the buddy order of every kernel stack.
	StackOrder = mem.PageOrder(1)

	// WordSize is the size of a stack slot in bytes.
	WordSize = 8
)

var (
	errStackOverflow  = &kernel.Error{Module: "kstack", Message: "stack overflow"}
	errStackUnderflow = &kernel.Error{Module: "kstack", Message: "stack underflow"}
	errStackReleased  = &kernel.Error{Module: "kstack", Message: "stack already released"}
)

// PageAllocator is implemented by page allocators that can back kernel
// stacks.
type PageAllocator interface {
	AllocPages(order mem.PageOrder) (*physical.PageRecord, *kernel.Error)
	FreePages(rec *physical.PageRecord, order mem.PageOrder) *kernel.Error
	Bytes(rec *physical.PageRecord) []byte
}

// Allocator hands out kernel stacks.
type Allocator struct {
	pages PageAllocator
}

// NewAllocator returns a stack allocator that obtains memory from pages.
func NewAllocator(pages PageAllocator) *Allocator {
	return &Allocator{pages: pages}
}

// Alloc reserves a new kernel stack. The stack pointer starts at the top of
// the stack.
func (a *Allocator) Alloc() (*Stack, *kernel.Error) {
	rec, err := a.pages.AllocPages(StackOrder)
	if err != nil {
		kfmt.Printf("[kstack] unable to allocate stack: %s\n", err.Message)
		return nil, err
	}

	data := a.pages.Bytes(rec)
	return &Stack{
		pages: a.pages,
		rec:   rec,
		data:  data,
		sp:    len(data),
	}, nil
}

// Stack is a kernel stack.
type Stack struct {
	pages PageAllocator
	rec   *physical.PageRecord
	data  []byte
	sp    int
}

// Base returns the physical address of the lowest byte of the stack.
func (s *Stack) Base() uintptr {
	if s.rec == nil {
		return 0
	}
	return s.rec.PhysAddr
}

// Top returns the physical address of the current stack pointer.
func (s *Stack) Top() uintptr {
	return s.Base() + uintptr(s.sp)
}

// Size returns the capacity of the stack in bytes.
func (s *Stack) Size() mem.Size {
	return mem.Size(len(s.data))
}

// Clear zeroes the stack contents and resets the stack pointer.
func (s *Stack) Clear() {
	mem.Memset(s.data, 0)
	s.sp = len(s.data)
}

// Push stores value below the current stack pointer.
func (s *Stack) Push(value uintptr) *kernel.Error {
	switch {
	case s.data == nil:
		return errStackReleased
	case s.sp < WordSize:
		return errStackOverflow
	}

	s.sp -= WordSize
	binary.LittleEndian.PutUint64(s.data[s.sp:], uint64(value))
	return nil
}

// pop removes and returns the value at the current stack pointer.
func (s *Stack) pop() (uintptr, *kernel.Error) {
	switch {
	case s.data == nil:
		return 0, errStackReleased
	case s.sp+WordSize > len(s.data):
		return 0, errStackUnderflow
	}

	value := uintptr(binary.LittleEndian.Uint64(s.data[s.sp:]))
	s.sp += WordSize
	return value, nil
}

// Words returns the pushed values starting with the one pushed first.
func (s *Stack) Words() []uintptr {
	var words []uintptr
	for offset := len(s.data) - WordSize; offset >= s.sp; offset -= WordSize {
		words = append(words, uintptr(binary.LittleEndian.Uint64(s.data[offset:])))
	}
	return words
}

// Free returns the stack memory to the page allocator. A stack may only be
// released once.
func (s *Stack) Free() *kernel.Error {
	if s.data == nil {
		return errStackReleased
	}

	if err := s.pages.FreePages(s.rec, StackOrder); err != nil {
		return err
	}

	s.data = nil
	s.rec = nil
	s.sp = 0
	return nil
}
