//go:build unix

package hostmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Map reserves size bytes of anonymous, zero-filled memory and exposes it
// as physical memory starting at base. The mapping is page aligned.
func Map(base uintptr, size uint64) (*Region, error) {
	if size == 0 || size > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("hostmem: invalid region size %d", size)
	}

	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("hostmem: mmap %d bytes: %w", size, err)
	}

	return &Region{base: base, data: data, unmap: unix.Munmap}, nil
}
