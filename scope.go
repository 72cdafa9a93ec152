package memkit

import (
	"fmt"
	"unsafe"
)

const initialScopeSize = 4

type scopedBlock struct {
	ptr     unsafe.Pointer
	aligned bool
}

// Scope hands out memory from an Allocator and remembers every block so
// Close can release them all through the matching free path. A Scope is
// not safe for concurrent use.
type Scope struct {
	mem    Allocator
	fixed  bool
	blocks []scopedBlock
}

// NewScope returns a scope that grows as needed.
func NewScope(mem Allocator) *Scope {
	return &Scope{mem: mem, blocks: make([]scopedBlock, 0, initialScopeSize)}
}

// NewFixedScope returns a scope holding at most n blocks.
func NewFixedScope(mem Allocator, n int) (*Scope, error) {
	if n <= 0 {
		return nil, fmt.Errorf("scope size must be greater than zero, got %d", n)
	}
	return &Scope{mem: mem, fixed: true, blocks: make([]scopedBlock, 0, n)}, nil
}

// Alloc returns size bytes at alignment. Alignments up to the allocator
// boundary use the plain path, larger ones the aligned path.
func (s *Scope) Alloc(size, alignment uint) (unsafe.Pointer, error) {
	if !isPow2(alignment) {
		return nil, checkAlignment(alignment, 0)
	}
	if s.fixed && len(s.blocks) == cap(s.blocks) {
		return nil, fmt.Errorf("scope holds %d blocks already: %w", cap(s.blocks), ErrBufferTooSmall)
	}

	var (
		ptr     unsafe.Pointer
		err     error
		aligned = alignment > s.mem.AlignmentBoundary()
	)
	if aligned {
		ptr, err = s.mem.AlignedAlloc(alignment, size)
	} else {
		ptr, err = s.mem.Alloc(size)
	}
	if err != nil {
		return nil, err
	}
	s.blocks = append(s.blocks, scopedBlock{ptr: ptr, aligned: aligned})
	return ptr, nil
}

// Len reports how many blocks the scope holds.
func (s *Scope) Len() int {
	return len(s.blocks)
}

// Close releases every block handed out by the scope.
func (s *Scope) Close() {
	for _, b := range s.blocks {
		if b.aligned {
			s.mem.AlignedFree(b.ptr)
		} else {
			s.mem.Free(b.ptr)
		}
	}
	s.blocks = s.blocks[:0]
}
