// Package sync provides the spinlock used to serialize access to the
// allocator free lists and the PID bitmap.
package sync

import (
	"runtime"
	"sync/atomic"
)

// attemptsBeforeYielding bounds the busy-wait loop before the waiting task
// hands the CPU over.
const attemptsBeforeYielding = 64

var (
	// yieldFn is invoked by tasks that failed to acquire a lock after
	// attemptsBeforeYielding tries.
	yieldFn = runtime.Gosched
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available. The zero value is an unlocked spinlock.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	for {
		for attempt := 0; attempt < attemptsBeforeYielding; attempt++ {
			if atomic.LoadUint32(&l.state) == 0 && atomic.CompareAndSwapUint32(&l.state, 0, 1) {
				return
			}
		}

		yieldFn()
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
