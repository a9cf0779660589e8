package kmain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gopherkern/internal/hostmem"
	"gopherkern/kernel/kstack"
	"gopherkern/kernel/mem"
	"gopherkern/kernel/mem/pmm"
	"gopherkern/kernel/thread"
	"gopherkern/kernel/vfs"
)

const testBase = uintptr(0x100000)

func bootTestSystem(t *testing.T, cpus uint32) *System {
	t.Helper()

	sys, err := Boot(hostmem.FromBytes(testBase, make([]byte, 4*mem.Mb)), testBase+0x10000, cpus)
	require.Nil(t, err)
	return sys
}

func TestBoot(t *testing.T) {
	sys := bootTestSystem(t, 4)

	require.Len(t, sys.Idle, 4)
	for cpu, idle := range sys.Idle {
		require.Equal(t, thread.IdlePID, idle.PID)
		require.Equal(t, uint32(cpu), idle.CPUAffinity)
		require.IsType(t, &kstack.Stack{}, idle.Stack)
	}
	require.Equal(t, "2", sys.Idle[2].Name)
	require.Equal(t, 4, sys.Heap.Stats().LiveObjects)
	require.Nil(t, sys.Pages.Verify())

	// Single frames come from the booted buddy allocator.
	freePages := sys.Pages.FreePageCount()
	frame, err := pmm.AllocFrame()
	require.Nil(t, err)
	rec, err := sys.Pages.AddressToRecord(frame.Address())
	require.Nil(t, err)
	require.True(t, rec.IsBusy())
	require.Equal(t, freePages-1, sys.Pages.FreePageCount())
	require.Nil(t, pmm.FreeFrame(frame))
	require.Equal(t, freePages, sys.Pages.FreePageCount())
}

func TestBootErrors(t *testing.T) {
	_, err := Boot(hostmem.FromBytes(testBase, make([]byte, 4*mem.Mb)), testBase+0x10000, 0)
	require.Equal(t, errNoCPUs, err)

	_, err = Boot(hostmem.FromBytes(testBase, make([]byte, 4*mem.Mb)), testBase-1, 1)
	require.NotNil(t, err)
}

func TestThreadLifecycleReturnsResources(t *testing.T) {
	sys := bootTestSystem(t, 1)
	sys.Heap.Shrink()

	heapBefore := sys.Heap.Stats()
	freePages := sys.Pages.FreePageCount()
	pidsBefore := sys.Threads.PIDs().Count()

	root := sys.Threads.RootFS().Root
	var workers []*thread.Thread
	for i := 0; i < 8; i++ {
		worker, err := sys.Threads.CreateThread("worker", func(uintptr) {}, uintptr(i), 5)
		require.Nil(t, err)

		stack := worker.Stack.(*kstack.Stack)
		require.Equal(t, uintptr(thread.InitialPSR), stack.Words()[15])
		require.Equal(t, uintptr(i), stack.Words()[14])

		_, err = worker.Files.OpenFile(vfs.NewDirectoryEntry("log", uint64(i), root))
		require.Nil(t, err)
		workers = append(workers, worker)
	}

	clone, err := workers[0].Ops.Copy(workers[0], thread.CloneVM, 0x4000)
	require.Nil(t, err)
	workers = append(workers, clone)

	for _, worker := range workers {
		require.Nil(t, worker.Ops.Kill(worker))
		require.Nil(t, sys.Threads.Reap(worker))
	}

	sys.Heap.Shrink()
	require.Equal(t, heapBefore, sys.Heap.Stats())
	require.Equal(t, freePages, sys.Pages.FreePageCount())
	require.Equal(t, pidsBefore, sys.Threads.PIDs().Count())
	require.Nil(t, sys.Pages.Verify())
}
