package pmm

import (
	"gopherkern/kernel"
	"gopherkern/kernel/mem"
	"gopherkern/kernel/mem/physical"
)

var (
	errNotInitialized = &kernel.Error{Module: "pmm", Message: "physical memory allocator not initialized"}
	errInvalidFrame   = &kernel.Error{Module: "pmm", Message: "invalid frame"}

	// buddyAllocator is the page allocator installed by Init.
	buddyAllocator *physical.BuddyAllocator

	// frameAllocator and frameReleaser point to the functions registered
	// using SetFrameAllocator.
	frameAllocator FrameAllocatorFn = func() (Frame, *kernel.Error) { return InvalidFrame, errNotInitialized }
	frameReleaser  FrameReleaserFn  = func(Frame) *kernel.Error { return errNotInitialized }
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// FrameReleaserFn is a function that returns a frame to its allocator.
type FrameReleaserFn func(Frame) *kernel.Error

// Init sets up the kernel physical memory allocation sub-system on top of the
// supplied memory region and installs the buddy allocator as the active
// frame allocator.
func Init(region physical.Memory, kernelEnd uintptr) (*physical.BuddyAllocator, *kernel.Error) {
	alloc, err := physical.New(region, kernelEnd)
	if err != nil {
		return nil, err
	}

	buddyAllocator = alloc
	SetFrameAllocator(buddyAllocFrame, buddyFreeFrame)
	return alloc, nil
}

// SetFrameAllocator registers the functions used for allocating and
// releasing single physical frames.
func SetFrameAllocator(allocFn FrameAllocatorFn, freeFn FrameReleaserFn) {
	frameAllocator = allocFn
	frameReleaser = freeFn
}

// AllocFrame allocates a new physical frame using the currently active
// physical frame allocator.
func AllocFrame() (Frame, *kernel.Error) { return frameAllocator() }

// FreeFrame releases a frame obtained via AllocFrame.
func FreeFrame(f Frame) *kernel.Error { return frameReleaser(f) }

func buddyAllocFrame() (Frame, *kernel.Error) {
	rec, err := buddyAllocator.AllocPages(0)
	if err != nil {
		return InvalidFrame, err
	}

	return FrameFromAddress(rec.PhysAddr), nil
}

func buddyFreeFrame(f Frame) *kernel.Error {
	if !f.Valid() {
		return errInvalidFrame
	}

	rec, err := buddyAllocator.AddressToRecord(f.Address())
	if err != nil {
		return err
	}

	return buddyAllocator.FreePages(rec, mem.PageOrder(0))
}
