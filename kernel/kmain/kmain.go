// Package kmain brings up the memory and thread subsystems on top of a
// physical memory region.
package kmain

import (
	"gopherkern/kernel"
	"gopherkern/kernel/kfmt"
	"gopherkern/kernel/kstack"
	"gopherkern/kernel/mem/kheap"
	"gopherkern/kernel/mem/physical"
	"gopherkern/kernel/mem/pmm"
	"gopherkern/kernel/thread"
	"gopherkern/kernel/timer"
)

var errNoCPUs = &kernel.Error{Module: "kmain", Message: "at least one CPU is required"}

// System holds the subsystems initialized by Boot.
type System struct {
	Pages   *physical.BuddyAllocator
	Heap    *kheap.Heap
	Stacks  *kstack.Allocator
	Timer   *timer.SystemTimer
	Threads *thread.Factory

	// Idle holds the idle thread of each CPU, indexed by CPU number.
	Idle []*thread.Thread
}

// Boot initializes the physical memory allocator for region, treating every
// byte below kernelEnd as part of the kernel image, and creates one idle
// thread per CPU.
func Boot(region physical.Memory, kernelEnd uintptr, cpus uint32) (*System, *kernel.Error) {
	if cpus == 0 {
		return nil, errNoCPUs
	}

	pages, err := pmm.Init(region, kernelEnd)
	if err != nil {
		return nil, err
	}

	sys := &System{
		Pages:  pages,
		Heap:   kheap.New(pages),
		Stacks: kstack.NewAllocator(pages),
		Timer:  timer.New(),
	}
	sys.Threads = thread.NewFactory(sys.Heap, thread.StackAllocatorFunc(sys.allocStack), sys.Timer)

	for cpu := uint32(0); cpu < cpus; cpu++ {
		idle, err := sys.Threads.CreateIdleThread(cpu)
		if err != nil {
			return nil, err
		}
		sys.Idle = append(sys.Idle, idle)
	}

	kfmt.Printf("[kmain] %d free pages, %d idle threads\n", pages.FreePageCount(), len(sys.Idle))
	return sys, nil
}

func (sys *System) allocStack() (thread.Stack, *kernel.Error) {
	stack, err := sys.Stacks.Alloc()
	if err != nil {
		return nil, err
	}
	return stack, nil
}
