package thread

import (
	"gopherkern/kernel"
	"gopherkern/kernel/mem"
)

var (
	errFakeOOM      = &kernel.Error{Module: "test", Message: "out of memory"}
	errFakeOverflow = &kernel.Error{Module: "test", Message: "stack overflow"}
	errFakeFree     = &kernel.Error{Module: "test", Message: "unknown address"}
)

type fakeHeap struct {
	next uintptr
	live map[uintptr]mem.Size

	// allocs counts successful allocations; failAfter, if non-zero, makes
	// allocations fail once allocs reaches it.
	allocs    int
	failAfter int
}

func newFakeHeap() *fakeHeap {
	return &fakeHeap{next: 0x10000, live: make(map[uintptr]mem.Size)}
}

func (h *fakeHeap) Alloc(size mem.Size) (uintptr, *kernel.Error) {
	if h.failAfter != 0 && h.allocs >= h.failAfter {
		return 0, errFakeOOM
	}

	addr := h.next
	h.next += uintptr(size)
	h.live[addr] = size
	h.allocs++
	return addr, nil
}

func (h *fakeHeap) Free(addr uintptr) *kernel.Error {
	if _, ok := h.live[addr]; !ok {
		return errFakeFree
	}
	delete(h.live, addr)
	return nil
}

type fakeStack struct {
	words    []uintptr
	limit    int
	cleared  bool
	released bool
}

func (s *fakeStack) Clear() {
	s.words = s.words[:0]
	s.cleared = true
}

func (s *fakeStack) Push(value uintptr) *kernel.Error {
	if s.limit != 0 && len(s.words) >= s.limit {
		return errFakeOverflow
	}
	s.words = append(s.words, value)
	return nil
}

func (s *fakeStack) Free() *kernel.Error {
	s.released = true
	return nil
}

type fakeStackAllocator struct {
	stacks []*fakeStack
	fail   bool
	limit  int
}

func (a *fakeStackAllocator) AllocStack() (Stack, *kernel.Error) {
	if a.fail {
		return nil, errFakeOOM
	}

	s := &fakeStack{words: []uintptr{0xbad}, limit: a.limit}
	a.stacks = append(a.stacks, s)
	return s, nil
}

type fakeTimer uint64

func (t *fakeTimer) RuntimeNanos() uint64 { return uint64(*t) }

type testEnv struct {
	heap    *fakeHeap
	stacks  *fakeStackAllocator
	timer   fakeTimer
	factory *Factory
}

func newTestEnv() *testEnv {
	env := &testEnv{
		heap:   newFakeHeap(),
		stacks: &fakeStackAllocator{},
		timer:  1234,
	}
	env.factory = NewFactory(env.heap, env.stacks, &env.timer)
	return env
}

func testEntry(arg uintptr) {}
