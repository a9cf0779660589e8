package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"gopherkern/kernel/kstack"
	"gopherkern/kernel/mem"
)

func TestLayoutCommand(t *testing.T) {
	resetFlags()

	output, err := captureOutput(t, runLayout)
	require.NoError(t, err)
	assertContains(t, output, []string{"Paged region:", "Page table:", "order 8 (  1 MiB)"})

	jsonOut = true
	defer resetFlags()

	output, err = captureOutput(t, runLayout)
	require.NoError(t, err)

	var report layoutReport
	decodeJSON(t, output, &report)
	require.Equal(t, uintptr(0x100000), report.MemStart)
	require.Equal(t, uintptr(16*mem.Mb), report.MemEnd)
	require.Len(t, report.FreeBlocks, int(mem.MaxPageOrder))
	require.Equal(t, report.TopGroups, report.FreeBlocks[mem.MaxPageOrder-1])
	require.Equal(t, report.PageCount, report.FreePages)
	require.GreaterOrEqual(t, report.TableStart, report.PagingEnd)
}

func TestLayoutCommandErrors(t *testing.T) {
	resetFlags()
	defer resetFlags()

	kernelEnd = 32 * uint64(mem.Mb)
	_, err := captureOutput(t, runLayout)
	require.Error(t, err)
}

func TestAllocCommand(t *testing.T) {
	tests := []struct {
		name         string
		order        mem.PageOrder
		count        int
		free         bool
		wantErr      bool
		wantAllocs   int
		wantRestored bool
	}{
		{name: "single top order block", order: 8, count: 1, free: true, wantAllocs: 1, wantRestored: true},
		{name: "several small blocks", order: 3, count: 5, free: true, wantAllocs: 5, wantRestored: true},
		{name: "keep allocations", order: 1, count: 2, wantAllocs: 2},
		{name: "exhaust top order", order: 8, count: 100, free: true, wantAllocs: 14, wantRestored: true},
		// Frames come from the leftover pages, which coalesce when freed.
		{name: "single frames", order: 0, count: 6, free: true, wantAllocs: 6},
		{name: "invalid order", order: mem.MaxPageOrder, count: 1, wantErr: true},
		{name: "negative count", order: 0, count: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			jsonOut = true
			defer resetFlags()

			output, err := captureOutput(t, func() error {
				return runAlloc(tt.order, tt.count, tt.free)
			})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			var report allocReport
			decodeJSON(t, output, &report)
			require.Len(t, report.Addresses, tt.wantAllocs)
			require.Equal(t, tt.free, report.Freed)
			require.Equal(t, tt.wantRestored, report.Restored)
			require.True(t, report.Consistent)

			for _, addr := range report.Addresses {
				require.Zero(t, addr%uintptr(tt.order.Size()), "block 0x%x is not aligned to its size", addr)
			}

			if tt.order == 0 {
				require.Len(t, report.Frames, tt.wantAllocs)
				for i, frame := range report.Frames {
					require.Equal(t, report.Addresses[i], frame.Address())
				}
			} else {
				require.Empty(t, report.Frames)
			}
		})
	}
}

func TestThreadsCommand(t *testing.T) {
	resetFlags()
	jsonOut = true
	defer resetFlags()

	output, err := captureOutput(t, func() error { return runThreads(3, 2) })
	require.NoError(t, err)

	var report threadsReport
	decodeJSON(t, output, &report)
	require.Len(t, report.Threads, 5)
	require.Equal(t, "0", report.Threads[0].Name)
	require.Equal(t, "1", report.Threads[1].Name)
	require.Equal(t, int64(1), report.Threads[1].Affinity)
	require.Equal(t, uint32(0), report.Threads[1].PID)

	for i, row := range report.Threads[2:] {
		require.Equal(t, uint32(i+1), row.PID)
		require.Equal(t, 1, row.OpenFiles)
		require.Equal(t, []string{fmt.Sprintf("/log/worker-%d", i)}, row.Files)
		require.False(t, row.FilesShared)
		require.Equal(t, "/", row.Cwd)
		require.Equal(t, int64(-1), row.Affinity)
		require.NotZero(t, row.StackBase)

		// PC, LR, R12-R0 and the status word sit below the stack top.
		require.Equal(t, 16, row.FrameWords)
		require.Equal(t, row.StackTop+16*kstack.WordSize, row.StackBase+uintptr(kstack.StackOrder.Size()))
	}

	require.Equal(t, 3, report.Reaped)
	require.Equal(t, 2, report.HeapObjectsAfter, "only the idle thread records stay allocated")
	require.Equal(t, uint32(1), report.PIDsInUse)
}

func TestThreadsCommandText(t *testing.T) {
	resetFlags()
	defer resetFlags()

	output, err := captureOutput(t, func() error { return runThreads(2, 1) })
	require.NoError(t, err)
	assertContains(t, output, []string{"PID", "worker-0", "worker-1", "/log/worker-1", "Reaped 2 worker threads"})
}

func TestKernelSinkFiltersModules(t *testing.T) {
	resetFlags()
	defer resetFlags()

	var buf bytes.Buffer
	sink := newKernelSink(&buf)
	_, err := sink.Write([]byte("[buddy] split order 3\n[thread] thread 'worker-0' (pid 1) created\n"))
	require.NoError(t, err)
	require.Equal(t, "kernel: [buddy] split order 3\nkernel: [thread] thread 'worker-0' (pid 1) created\n", buf.String())

	logModules = []string{"thread", "pid"}
	buf.Reset()
	sink = newKernelSink(&buf)
	_, err = sink.Write([]byte("[buddy] split order 3\n[thread] thread 'worker-0' (pid 1) created\n[pid] rejected free\n"))
	require.NoError(t, err)
	require.Equal(t, "kernel: [thread] thread 'worker-0' (pid 1) created\nkernel: [pid] rejected free\n", buf.String())
}
