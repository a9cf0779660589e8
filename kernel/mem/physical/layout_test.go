package physical

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gopherkern/kernel"
	"gopherkern/kernel/mem"
)

func TestComputeLayout(t *testing.T) {
	specs := []struct {
		descr     string
		base      uintptr
		size      uintptr
		kernelEnd uintptr
		expErr    *kernel.Error
	}{
		{"kernel end not page aligned", 0x0, uintptr(4 * mem.Mb), 0x8123, nil},
		{"kernel end page aligned", 0x0, uintptr(4 * mem.Mb), 0x9000, nil},
		{"odd region size", 0x200000, uintptr(3*mem.Mb) + 0x777, 0x200000 + 0x4000, nil},
		{"misaligned base", 0x123, uintptr(4 * mem.Mb), 0x8000, errMisalignedMemory},
		{"kernel end below base", 0x100000, uintptr(4 * mem.Mb), 0x1000, errKernelEndOutOfRange},
		{"kernel end past memory", 0x0, uintptr(1 * mem.Mb), uintptr(2 * mem.Mb), errKernelEndOutOfRange},
		{"kernel fills memory", 0x0, uintptr(64 * mem.Kb), uintptr(64*mem.Kb) - 1, errNoUsableMemory},
		{"no room for a page and its record", 0x0, 0x1000 + 0x1000, 0x1000, errNoUsableMemory},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			layout, err := computeLayout(spec.base, spec.size, spec.kernelEnd)
			if spec.expErr != nil {
				require.Equal(t, spec.expErr, err)
				return
			}
			require.Nil(t, err)

			pageSizeMinus1 := uintptr(mem.PageSize - 1)
			require.Equal(t, spec.kernelEnd, layout.MemStart)
			require.Equal(t, spec.base+spec.size, layout.MemEnd)
			require.Zero(t, layout.PagingStart&pageSizeMinus1, "paging start must be page aligned")
			require.GreaterOrEqual(t, layout.PagingStart, layout.MemStart)
			require.Less(t, layout.PagingStart-layout.MemStart, uintptr(mem.PageSize))

			require.Equal(t, layout.PagingStart+uintptr(layout.PageCount)<<mem.PageShift, layout.PagingEnd)
			require.GreaterOrEqual(t, layout.TableStart, layout.PagingEnd, "table overlaps the paged region")
			require.Zero(t, layout.TableStart%recordAlign)
			require.LessOrEqual(t, layout.TableStart+uintptr(layout.PageCount)*recordSize, layout.MemEnd)

			avail := layout.MemEnd - layout.PagingStart
			require.LessOrEqual(t, uintptr(layout.PageCount)*(uintptr(mem.PageSize)+recordSize), avail)

			// One more page would not fit.
			require.Greater(t, uintptr(layout.PageCount+1)*(uintptr(mem.PageSize)+recordSize)+recordAlign-1, avail)
		})
	}
}

func TestComputeLayoutRejectsUnaddressablePageCount(t *testing.T) {
	if ^uintptr(0)>>32 == 0 {
		t.Skip("regions this large need a 64-bit address space")
	}

	// 32 TiB holds more pages than a uint32 page index can reach.
	size := uintptr(1)
	size <<= 45

	_, err := computeLayout(0, size, uintptr(mem.PageSize))
	require.Equal(t, errTooManyPages, err)

	// 16 GiB stays well within range.
	size = uintptr(16)
	size <<= 30
	layout, err := computeLayout(0, size, uintptr(mem.PageSize))
	require.Nil(t, err)
	require.NotZero(t, layout.PageCount)
}

func TestLayoutTopOrderGroups(t *testing.T) {
	specs := []struct {
		pages     uint32
		expGroups uint32
	}{
		{0, 0},
		{mem.MaxBlockPages - 1, 0},
		{mem.MaxBlockPages, 1},
		{3*mem.MaxBlockPages + 17, 3},
	}

	for specIndex, spec := range specs {
		if got := (Layout{PageCount: spec.pages}).TopOrderGroups(); got != spec.expGroups {
			t.Errorf("[spec %d] expected %d top-order groups; got %d", specIndex, spec.expGroups, got)
		}
	}
}
