// Package hostmem provides the physical memory backing used when the kernel
// core runs as a regular process: a byte region paired with the physical
// address its first byte represents.
package hostmem

import "fmt"

// Region is a block of host memory that stands in for physical RAM.
type Region struct {
	base  uintptr
	data  []byte
	unmap func([]byte) error
}

// FromBytes wraps data as a region whose first byte lives at physical
// address base. The caller keeps ownership of data.
func FromBytes(base uintptr, data []byte) *Region {
	return &Region{base: base, data: data}
}

// Base returns the physical address of the first byte of the region.
func (r *Region) Base() uintptr {
	return r.base
}

// Bytes returns the region contents.
func (r *Region) Bytes() []byte {
	return r.data
}

// Size returns the region size in bytes.
func (r *Region) Size() uint64 {
	return uint64(len(r.data))
}

// Close releases mapped memory. Closing a region created by FromBytes or
// closing a region twice is a no-op.
func (r *Region) Close() error {
	if r.unmap == nil || r.data == nil {
		return nil
	}

	data := r.data
	r.data = nil
	if err := r.unmap(data); err != nil {
		return fmt.Errorf("hostmem: unmap: %w", err)
	}

	return nil
}
