package thread

import (
	"gopherkern/kernel"
	"gopherkern/kernel/kfmt"
)

var (
	errNeedsScheduler = &kernel.Error{Module: "thread", Message: "operation requires a scheduler"}
	errAlreadyExited  = &kernel.Error{Module: "thread", Message: "thread has already exited"}
)

// Operations is the lifecycle capability bound to a thread. The default
// implementation only supports Kill and Copy; the remaining operations are
// left to a scheduler-backed implementation.
type Operations interface {
	Suspend(t *Thread) *kernel.Error
	Resume(t *Thread) *kernel.Error
	Sleep(t *Thread, deadline uint64) *kernel.Error
	Detach(t *Thread) *kernel.Error
	Join(t *Thread, deadline uint64) (int32, *kernel.Error)
	Exit(t *Thread, code int32) *kernel.Error
	Kill(t *Thread) *kernel.Error
	Copy(t *Thread, flags CloneFlags, heapStart uintptr) (*Thread, *kernel.Error)
}

type defaultOps struct {
	factory *Factory
}

func (defaultOps) Suspend(*Thread) *kernel.Error              { return errNeedsScheduler }
func (defaultOps) Resume(*Thread) *kernel.Error               { return errNeedsScheduler }
func (defaultOps) Sleep(*Thread, uint64) *kernel.Error        { return errNeedsScheduler }
func (defaultOps) Detach(*Thread) *kernel.Error               { return errNeedsScheduler }
func (defaultOps) Join(*Thread, uint64) (int32, *kernel.Error) { return 0, errNeedsScheduler }
func (defaultOps) Exit(*Thread, int32) *kernel.Error          { return errNeedsScheduler }

// Kill releases the PID and the kernel stack of t and marks it as exited.
// The thread record and its file table stay around until the thread is
// reaped. A PID that cannot be released is reported after the rest of the
// thread has been torn down.
func (ops defaultOps) Kill(t *Thread) *kernel.Error {
	if t.Status == StatusExited {
		kfmt.Printf("[thread] rejected kill of thread '%s' (pid %d): %s\n", t.Name, t.PID, errAlreadyExited.Message)
		return errAlreadyExited
	}

	var pidErr *kernel.Error
	if t.PID != IdlePID {
		if pidErr = ops.factory.pids.Free(t.PID); pidErr != nil {
			kfmt.Printf("[thread] unable to release pid of thread '%s' (pid %d): %s\n", t.Name, t.PID, pidErr.Message)
		}
	}

	if t.Stack != nil {
		if err := t.Stack.Free(); err != nil {
			kfmt.Printf("[thread] unable to release stack of thread '%s': %s\n", t.Name, err.Message)
		}
		t.Stack = nil
	}

	t.LastCPU, t.CurrCPU = t.CurrCPU, InvalidCPU
	t.Status = StatusExited
	kfmt.Printf("[thread] thread '%s' (pid %d) killed\n", t.Name, t.PID)
	return pidErr
}

// Copy creates a thread that runs the same entry point as t. Flags select
// which resources the copy shares with t; everything else is duplicated.
// heapStart is applied to the private address space of the copy and is
// ignored when the address space is shared.
func (ops defaultOps) Copy(t *Thread, flags CloneFlags, heapStart uintptr) (*Thread, *kernel.Error) {
	if t.Status == StatusExited {
		return nil, errAlreadyExited
	}

	f := ops.factory
	clone, err := f.CreateThread(t.Name, t.Entry, t.Arg, t.Priority)
	if err != nil {
		return nil, err
	}
	clone.Parent = t

	if flags&CloneVM != 0 {
		clone.Memory = t.Memory
	} else {
		clone.Memory = &MemoryStruct{VMMSpace: t.Memory.VMMSpace}
		clone.Memory.VMMSpace.HeapStart = heapStart
	}

	if flags&CloneFiles != 0 {
		clone.Files.release()
		clone.Files = t.Files.acquire()
	} else if err = t.Files.copyInto(clone.Files); err != nil {
		f.destroy(clone)
		return nil, err
	}

	if flags&CloneFS != 0 {
		clone.FS = t.FS
	} else {
		clone.FS = t.FS.Clone()
	}

	kfmt.Printf("[thread] thread '%s' (pid %d) copied to pid %d with flags 0x%x\n", t.Name, t.PID, clone.PID, uint32(flags))
	return clone, nil
}
