//go:build !unix

package hostmem

import "fmt"

// Map reserves size bytes of zero-filled memory and exposes it as physical
// memory starting at base. Platforms without mmap fall back to the Go heap.
func Map(base uintptr, size uint64) (*Region, error) {
	if size == 0 || size > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("hostmem: invalid region size %d", size)
	}

	return &Region{base: base, data: make([]byte, size)}, nil
}
