package memkit

import (
	"fmt"
	"unsafe"

	"github.com/phuslu/log"
)

// Thread is the per-thread cache of a Pool and the Allocator callers use
// for pooled memory. It is not safe for concurrent use; blocks may be
// freed by any registered Thread of the same pool, not only the one that
// allocated them.
type Thread struct {
	pool      *Pool
	id        uint64
	finalized bool
	lists     [numClasses]freeList
}

var _ Allocator = (*Thread)(nil)

// ID identifies the thread within its pool, for logs.
func (t *Thread) ID() uint64 {
	return t.id
}

// AlignmentBoundary is the pool block alignment.
func (t *Thread) AlignmentBoundary() uint {
	return poolAlignment
}

func (t *Thread) check(op string) error {
	if !t.finalized {
		return nil
	}
	return violation("%s on finalized thread %d", op, t.id)
}

func (t *Thread) Alloc(size uint) (unsafe.Pointer, error) {
	if err := t.check("alloc"); err != nil {
		return nil, err
	}
	return t.alloc(size)
}

func (t *Thread) alloc(size uint) (unsafe.Pointer, error) {
	size = max(size, 1)
	class, small := classOf(size)
	if !small {
		return t.pool.allocLarge(size, poolAlignment)
	}
	ptr := t.lists[class].pop()
	if ptr == nil {
		ptr = t.pool.depot.get(class)
	}
	if ptr == nil {
		var err error
		if ptr, err = t.pool.carve(class); err != nil {
			return nil, fmt.Errorf("pool alloc %d bytes: %w", size, err)
		}
	}
	*headerOf(ptr) = blockHeader{size: uint64(size), class: uint32(class)}
	return ptr, nil
}

func (t *Thread) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	h := headerOf(ptr)
	if h.class == largeClass {
		t.pool.freeLarge(ptr)
		return
	}
	class := int(h.class)
	if t.finalized {
		assertf(false, "free on finalized thread %d", t.id)
		log.Warn().Msgf("Free on finalized thread %d, returning block to the depot", t.id)
		t.pool.depot.put(class, ptr)
		return
	}
	l := &t.lists[class]
	l.push(ptr)
	if uint(l.n) > t.pool.config.ThreadCache {
		t.spill(class)
	}
}

// spill hands half of a class list to the depot.
func (t *Thread) spill(class int) {
	l := &t.lists[class]
	var half freeList
	for range l.n / 2 {
		half.push(l.pop())
	}
	t.pool.depot.putList(class, &half)
}

func (t *Thread) Realloc(ptr unsafe.Pointer, size uint) (unsafe.Pointer, error) {
	if err := t.check("realloc"); err != nil {
		return nil, err
	}
	if ptr == nil {
		return t.alloc(size)
	}
	size = max(size, 1)
	h := headerOf(ptr)
	if h.class != largeClass && size <= classSizes[h.class] {
		h.size = uint64(size)
		return ptr, nil
	}
	next, err := t.alloc(size)
	if err != nil {
		return nil, err
	}
	copy(bytesAt(next, size), bytesAt(ptr, uint(min(h.size, uint64(size)))))
	t.Free(ptr)
	return next, nil
}

func (t *Thread) AlignedAlloc(alignment, size uint) (unsafe.Pointer, error) {
	if err := t.check("aligned alloc"); err != nil {
		return nil, err
	}
	if err := checkAlignment(alignment, t.pool.config.MaxAlignment); err != nil {
		return nil, err
	}
	if alignment <= poolAlignment {
		return t.alloc(size)
	}
	return t.pool.allocLarge(max(size, 1), alignment)
}

// AlignedFree is Free, pool blocks carry their own layout.
func (t *Thread) AlignedFree(ptr unsafe.Pointer) {
	t.Free(ptr)
}

// Finalize returns every cached block to the depot and unregisters the
// thread. The Thread must not be used afterwards.
func (t *Thread) Finalize() error {
	if err := t.check("thread finalize"); err != nil {
		return err
	}
	for class := range t.lists {
		t.pool.depot.putList(class, &t.lists[class])
	}
	if err := t.pool.state.threadExit(); err != nil {
		return err
	}
	t.finalized = true
	log.Debug().Msgf("Pool thread %d finalized", t.id)
	return nil
}
