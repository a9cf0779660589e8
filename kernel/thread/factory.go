package thread

import (
	"reflect"
	"strconv"
	"unsafe"

	"gopherkern/kernel"
	"gopherkern/kernel/cpu"
	"gopherkern/kernel/kfmt"
	"gopherkern/kernel/mem"
	"gopherkern/kernel/vfs"
)

// InitialPSR is the processor status word loaded when a new thread is first
// scheduled: supervisor mode with IRQs and FIQs masked.
const InitialPSR = 0x600001d3

var (
	errNilEntry   = &kernel.Error{Module: "thread", Message: "nil entry routine"}
	errBadMagic   = &kernel.Error{Module: "thread", Message: "thread record is not live"}
	errNotExited  = &kernel.Error{Module: "thread", Message: "thread must be killed before it is reaped"}
	tcbRecordSize = mem.Size(unsafe.Sizeof(Thread{}))

	// scratchRegisters holds the placeholder values for R12 down to R1.
	scratchRegisters = [...]uintptr{
		0x12121212, 0x11111111, 0x10101010, 0x09090909,
		0x08080808, 0x07070707, 0x06060606, 0x05050505,
		0x04040404, 0x03030303, 0x02020202, 0x01010101,
	}
)

// Factory creates threads and owns the PID map they draw their identity
// from.
type Factory struct {
	heap   Heap
	stacks StackAllocator
	timer  Timer
	pids   PidMap
	ops    Operations
	rootFS *vfs.FSContext
}

// NewFactory returns a thread factory that allocates thread records from
// heap and kernel stacks from stacks. The idle PID is reserved up front.
func NewFactory(heap Heap, stacks StackAllocator, timer Timer) *Factory {
	f := &Factory{
		heap:   heap,
		stacks: stacks,
		timer:  timer,
		rootFS: vfs.NewFSContext(vfs.NewDirectoryEntry("", 0, nil)),
	}
	f.ops = defaultOps{factory: f}
	_ = f.pids.Reserve(IdlePID)

	return f
}

// PIDs returns the PID map used by the factory.
func (f *Factory) PIDs() *PidMap {
	return &f.pids
}

// RootFS returns the filesystem context new threads start from.
func (f *Factory) RootFS() *vfs.FSContext {
	return f.rootFS
}

// CreateThread creates a thread in the initial state whose stack holds the
// register frame consumed by the context switch code when the thread is
// first scheduled.
func (f *Factory) CreateThread(name string, entry StartRoutine, arg uintptr, priority uint32) (*Thread, *kernel.Error) {
	t, err := f.createThread(name, entry, arg, priority, true)
	if err != nil {
		kfmt.Printf("[thread] thread '%s' creation failed: %s\n", name, err.Message)
		return nil, err
	}

	kfmt.Printf("[thread] thread '%s' (pid %d) created\n", t.Name, t.PID)
	return t, nil
}

// CreateIdleThread creates the idle thread for a CPU. Idle threads share
// IdlePID and are named after the CPU they are pinned to.
func (f *Factory) CreateIdleThread(cpuNum uint32) (*Thread, *kernel.Error) {
	t, err := f.createThread("IDLE", idleRoutine, uintptr(cpuNum), IdlePriority, false)
	if err != nil {
		kfmt.Printf("[thread] idle thread for CPU %d creation failed: %s\n", cpuNum, err.Message)
		return nil, err
	}

	t.PID = IdlePID
	t.Name = strconv.FormatUint(uint64(cpuNum), 10)
	t.CPUAffinity = cpuNum

	kfmt.Printf("[thread] idle thread for CPU %d created\n", cpuNum)
	return t, nil
}

// Reap releases the record and the file table of a killed thread.
func (f *Factory) Reap(t *Thread) *kernel.Error {
	switch {
	case t == nil || t.Magic != Magic:
		return errBadMagic
	case t.Status != StatusExited:
		return errNotExited
	}

	f.destroy(t)
	kfmt.Printf("[thread] thread '%s' (pid %d) reaped\n", t.Name, t.PID)
	return nil
}

func (f *Factory) createThread(name string, entry StartRoutine, arg uintptr, priority uint32, allocPID bool) (*Thread, *kernel.Error) {
	if entry == nil {
		return nil, errNilEntry
	}

	stack, err := f.stacks.AllocStack()
	if err != nil {
		return nil, err
	}

	entryAddr := reflect.ValueOf(entry).Pointer()
	if err = pushInitialFrame(stack, entryAddr, arg); err != nil {
		_ = stack.Free()
		return nil, err
	}

	record, err := f.heap.Alloc(tcbRecordSize)
	if err != nil {
		_ = stack.Free()
		return nil, err
	}

	pid := IdlePID
	if allocPID {
		if pid, err = f.pids.Alloc(); err != nil {
			_ = f.heap.Free(record)
			_ = stack.Free()
			return nil, err
		}
	}

	return &Thread{
		Magic:       Magic,
		PID:         pid,
		Name:        truncateName(name),
		Priority:    priority,
		Status:      StatusInitial,
		CurrCPU:     InvalidCPU,
		LastCPU:     InvalidCPU,
		CPUAffinity: InvalidCPU,
		StartTime:   f.timer.RuntimeNanos(),
		Stack:       stack,
		Entry:       entry,
		Arg:         arg,
		Memory:      &MemoryStruct{},
		Files:       newFilesStruct(f.heap),
		FS:          f.rootFS.Clone(),
		RBNode:      RBNode{Color: NodeRed},
		Ops:         f.ops,
		record:      record,
	}, nil
}

// destroy releases every resource still held by t.
func (f *Factory) destroy(t *Thread) {
	if t.Status != StatusExited {
		_ = t.Ops.Kill(t)
	}

	if t.Files != nil {
		_ = t.Files.release()
		t.Files = nil
	}

	_ = f.heap.Free(t.record)
	t.record = 0
	t.Magic = 0
}

// pushInitialFrame lays out the register frame restored on the first switch
// to a thread: PC, LR, R12-R1, R0 (the argument) and the status word.
func pushInitialFrame(stack Stack, entry, arg uintptr) *kernel.Error {
	stack.Clear()

	frame := make([]uintptr, 0, 16)
	frame = append(frame, entry, entry)
	frame = append(frame, scratchRegisters[:]...)
	frame = append(frame, arg, InitialPSR)

	for _, value := range frame {
		if err := stack.Push(value); err != nil {
			return err
		}
	}

	return nil
}

func idleRoutine(arg uintptr) {
	for {
		kfmt.Printf("[thread] IDLE: %d\n", arg)
		cpu.WaitForInterrupt()
	}
}
