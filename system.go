package memkit

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/phuslu/log"
)

// libc is the platform allocator bound at runtime.
//
// alignedAlloc always takes the alignment first and alignedFree always
// pairs with it; the per-platform adapters hide the argument order and
// free path of the underlying C runtime.
type libc struct {
	name         string
	pageSize     uint
	malloc       func(size uintptr) unsafe.Pointer
	free         func(ptr unsafe.Pointer)
	realloc      func(ptr unsafe.Pointer, size uintptr) unsafe.Pointer
	alignedAlloc func(alignment, size uintptr) unsafe.Pointer
	alignedFree  func(ptr unsafe.Pointer)
}

var loadLibc = sync.OnceValues(openLibc)

// System is the platform allocator. It is safe for concurrent use.
type System struct {
	c            *libc
	maxAlignment uint
}

var _ Allocator = (*System)(nil)

// NewSystem binds the platform C allocator.
func NewSystem() (*System, error) {
	c, err := loadLibc()
	if err != nil {
		return nil, fmt.Errorf("system allocator: %w: %w", ErrInitFailed, err)
	}
	s := &System{
		c: c,
		// aligned_alloc wastes up to alignment bytes per block, keep it
		// within a handful of pages.
		maxAlignment: c.pageSize << 4,
	}
	log.Debug().Msgf("System allocator bound to %s, page size %d", c.name, c.pageSize)
	return s, nil
}

// MaxAlignment is the largest alignment AlignedAlloc accepts.
func (s *System) MaxAlignment() uint {
	return s.maxAlignment
}

// AlignmentBoundary is the pointer alignment.
func (s *System) AlignmentBoundary() uint {
	return ptrSize
}

func (s *System) Alloc(size uint) (unsafe.Pointer, error) {
	ptr := s.c.malloc(uintptr(max(size, 1)))
	if ptr == nil {
		return nil, fmt.Errorf("system alloc %d bytes: %w", size, ErrOutOfMemory)
	}
	return ptr, nil
}

func (s *System) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	s.c.free(ptr)
}

func (s *System) Realloc(ptr unsafe.Pointer, size uint) (unsafe.Pointer, error) {
	if ptr == nil {
		return s.Alloc(size)
	}
	// realloc(ptr, 0) may free ptr, never ask for it.
	next := s.c.realloc(ptr, uintptr(max(size, 1)))
	if next == nil {
		return nil, fmt.Errorf("system realloc %d bytes: %w", size, ErrOutOfMemory)
	}
	return next, nil
}

func (s *System) AlignedAlloc(alignment, size uint) (unsafe.Pointer, error) {
	if err := checkAlignment(alignment, s.maxAlignment); err != nil {
		return nil, err
	}
	// the size is rounded up to the alignment before it reaches the C
	// runtime and must not wrap
	if size > ^uint(0)-max(alignment, ptrSize) {
		return nil, fmt.Errorf("system aligned alloc %d bytes at %d: %w", size, alignment, ErrOutOfMemory)
	}
	ptr := s.c.alignedAlloc(uintptr(alignment), uintptr(max(size, 1)))
	if ptr == nil {
		return nil, fmt.Errorf("system aligned alloc %d bytes at %d: %w", size, alignment, ErrOutOfMemory)
	}
	return ptr, nil
}

func (s *System) AlignedFree(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	s.c.alignedFree(ptr)
}
