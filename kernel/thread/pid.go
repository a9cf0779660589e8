package thread

import (
	"math/bits"

	"gopherkern/kernel"
	"gopherkern/kernel/kfmt"
	"gopherkern/kernel/sync"
)

// MaxPid is the number of PIDs tracked by a PidMap.
const MaxPid = 2048

var (
	errPidExhausted    = &kernel.Error{Module: "pid", Message: "no free PID"}
	errPidOutOfRange   = &kernel.Error{Module: "pid", Message: "PID out of range"}
	errPidNotAllocated = &kernel.Error{Module: "pid", Message: "PID is not allocated"}
	errPidInUse        = &kernel.Error{Module: "pid", Message: "PID already in use"}
)

// PidMap is a bitmap allocator for process identifiers. The zero value has
// every PID available.
type PidMap struct {
	lock  sync.Spinlock
	bits  [MaxPid / 64]uint64
	count uint32
}

// Alloc reserves the lowest free PID.
func (m *PidMap) Alloc() (uint32, *kernel.Error) {
	m.lock.Acquire()
	defer m.lock.Release()

	for block, word := range m.bits {
		if word == ^uint64(0) {
			continue
		}

		bit := uint32(bits.TrailingZeros64(^word))
		m.bits[block] |= 1 << bit
		m.count++
		return uint32(block)*64 + bit, nil
	}

	return 0, errPidExhausted
}

// Reserve marks a specific PID as allocated.
func (m *PidMap) Reserve(pid uint32) *kernel.Error {
	if pid >= MaxPid {
		return errPidOutOfRange
	}

	m.lock.Acquire()
	defer m.lock.Release()

	block, mask := pid/64, uint64(1)<<(pid%64)
	if m.bits[block]&mask != 0 {
		return errPidInUse
	}

	m.bits[block] |= mask
	m.count++
	return nil
}

// Free releases pid. Releasing a PID that is not allocated is reported and
// leaves the bitmap untouched.
func (m *PidMap) Free(pid uint32) *kernel.Error {
	if pid >= MaxPid {
		kfmt.Printf("[pid] rejected free of PID %d: %s\n", pid, errPidOutOfRange.Message)
		return errPidOutOfRange
	}

	m.lock.Acquire()
	defer m.lock.Release()

	block, mask := pid/64, uint64(1)<<(pid%64)
	if m.bits[block]&mask == 0 {
		kfmt.Printf("[pid] rejected free of PID %d: %s\n", pid, errPidNotAllocated.Message)
		return errPidNotAllocated
	}

	m.bits[block] &^= mask
	m.count--
	return nil
}

// InUse returns true if pid is allocated.
func (m *PidMap) InUse(pid uint32) bool {
	if pid >= MaxPid {
		return false
	}

	m.lock.Acquire()
	defer m.lock.Release()
	return m.bits[pid/64]&(1<<(pid%64)) != 0
}

// Count returns the number of allocated PIDs.
func (m *PidMap) Count() uint32 {
	m.lock.Acquire()
	defer m.lock.Release()
	return m.count
}
