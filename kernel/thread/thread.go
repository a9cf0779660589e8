// Package thread implements thread control blocks and their lifecycle on top
// of the kernel heap and kernel stack allocators.
package thread

import (
	"unicode/utf8"

	"gopherkern/kernel"
	"gopherkern/kernel/mem"
	"gopherkern/kernel/vfs"
)

const (
	// Magic is stamped on every live thread record.
	Magic = uint32(0x54485244)

	// InvalidCPU marks threads that are not placed on any CPU.
	InvalidCPU = ^uint32(0)

	// IdlePID is the identity shared by all idle threads. It is never
	// handed out by the PID allocator.
	IdlePID = uint32(0)

	// IdlePriority is the lowest thread priority.
	IdlePriority = uint32(255)

	// MaxNameLen is the maximum length of a thread name in bytes.
	MaxNameLen = 32
)

// Status describes the scheduling state of a thread.
type Status uint8

const (
	// StatusInitial is the state of a created thread that has never run.
	StatusInitial Status = iota

	// StatusReady marks a thread waiting in a ready queue.
	StatusReady

	// StatusRunning marks a thread currently executing on a CPU.
	StatusRunning

	// StatusSuspended marks a thread removed from scheduling until resumed.
	StatusSuspended

	// StatusSleeping marks a thread waiting for a deadline.
	StatusSleeping

	// StatusExited marks a killed thread that has not been reaped yet.
	StatusExited
)

// String implements fmt.Stringer for Status.
func (s Status) String() string {
	switch s {
	case StatusInitial:
		return "initial"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusSuspended:
		return "suspended"
	case StatusSleeping:
		return "sleeping"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

// StartRoutine is the entry point of a thread.
type StartRoutine func(arg uintptr)

// CloneFlags select the resources a copied thread shares with its source.
type CloneFlags uint32

const (
	// CloneVM shares the address space.
	CloneVM CloneFlags = 1 << iota

	// CloneFiles shares the open file table.
	CloneFiles

	// CloneFS shares the filesystem context.
	CloneFS
)

// Heap allocates the records backing threads and file descriptors.
type Heap interface {
	Alloc(size mem.Size) (uintptr, *kernel.Error)
	Free(addr uintptr) *kernel.Error
}

// Stack is a kernel stack owned by a thread.
type Stack interface {
	Clear()
	Push(value uintptr) *kernel.Error
	Free() *kernel.Error
}

// StackAllocator hands out kernel stacks.
type StackAllocator interface {
	AllocStack() (Stack, *kernel.Error)
}

// StackAllocatorFunc adapts a function to the StackAllocator interface.
type StackAllocatorFunc func() (Stack, *kernel.Error)

// AllocStack calls fn.
func (fn StackAllocatorFunc) AllocStack() (Stack, *kernel.Error) { return fn() }

// Timer provides the time base for thread accounting.
type Timer interface {
	RuntimeNanos() uint64
}

// VMMSpace describes the address space of a thread. Page table management
// lives outside this package; the descriptor only carries addresses.
type VMMSpace struct {
	PageTableAddr     uintptr
	CodeSectionAddr   uintptr
	RODataSectionAddr uintptr
	DataSectionAddr   uintptr
	BSSSectionAddr    uintptr
	HeapStart         uintptr
}

// MemoryStruct holds the memory context of a thread.
type MemoryStruct struct {
	VMMSpace VMMSpace
}

// ListNode links a thread into a scheduler list.
type ListNode struct {
	Prev, Next *Thread
}

// NodeColor is the color of a red-black tree node.
type NodeColor uint8

const (
	// NodeRed is the color of newly inserted tree nodes.
	NodeRed NodeColor = iota

	// NodeBlack is the color of balanced tree nodes.
	NodeBlack
)

// RBNode embeds a thread into a red-black tree.
type RBNode struct {
	Parent, Left, Right *Thread
	Color               NodeColor
}

// Thread is a thread control block.
type Thread struct {
	Magic    uint32
	PID      uint32
	Name     string
	Priority uint32
	Status   Status

	CurrCPU     uint32
	LastCPU     uint32
	CPUAffinity uint32

	StartTime        uint64
	RuntimeNs        uint64
	RuntimeVirtualNs uint64

	// Parent is a weak reference to the thread this one was copied from.
	Parent *Thread

	Stack Stack
	Entry StartRoutine
	Arg   uintptr

	Memory *MemoryStruct
	Files  *FilesStruct
	FS     *vfs.FSContext

	ThreadList ListNode
	ReadyQueue ListNode
	RBNode     RBNode

	Ops Operations

	// record is the heap address of the block accounting for this
	// thread.
	record uintptr
}

// truncateName cuts name to at most MaxNameLen bytes without splitting a
// multi-byte rune.
func truncateName(name string) string {
	if len(name) <= MaxNameLen {
		return name
	}

	end := MaxNameLen
	for end > 0 && !utf8.RuneStart(name[end]) {
		end--
	}
	return name[:end]
}
