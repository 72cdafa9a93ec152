package memkit

import (
	"fmt"
	"unsafe"
)

// arenaMaxAlignment bounds AlignedAlloc on an Arena, every aligned block
// wastes up to this much of a chunk.
const arenaMaxAlignment = 4096

// Arena is a bump allocator backed by Go heap chunks. Free is a no-op and
// memory comes back all at once with Reset or Release, which makes it a
// handy backend for tests and short-lived scratch work.
//
// Alloc, Realloc and AlignedAlloc are safe for concurrent use; Reset and
// Release are not.
type Arena struct {
	a *arena
}

var _ Allocator = (*Arena)(nil)

// NewArena creates an arena carving blocks out of chunks of chunkSize
// bytes, at most maxChunks of them.
func NewArena(chunkSize uint, maxChunks int) (*Arena, error) {
	switch {
	case chunkSize < arenaMaxAlignment || chunkSize > maxChunkSize:
		return nil, fmt.Errorf("arena chunk size %d out of range [%d, %d]", chunkSize, arenaMaxAlignment, maxChunkSize)
	case maxChunks <= 0:
		return nil, fmt.Errorf("arena needs at least one chunk, got %d", maxChunks)
	}
	chunkSize = uint(alignUp(uintptr(chunkSize), chunkAlign))
	return &Arena{a: newArena(uint64(chunkSize), maxChunks, &heapChunks{})}, nil
}

// AlignmentBoundary is the header alignment of every block.
func (a *Arena) AlignmentBoundary() uint {
	return headerSize
}

// Chunks reports how many chunks are currently mapped.
func (a *Arena) Chunks() int {
	return a.a.chunkCount()
}

func (a *Arena) Alloc(size uint) (unsafe.Pointer, error) {
	size = max(size, 1)
	if size > maxChunkSize {
		return nil, fmt.Errorf("arena alloc %d bytes: %w", size, ErrOutOfMemory)
	}
	n := headerSize + uint64(alignUp(uintptr(size), headerSize))
	p, err := a.a.alloc(n)
	if err != nil {
		return nil, fmt.Errorf("arena alloc %d bytes: %w", size, err)
	}
	*(*uint64)(p) = uint64(size)
	return unsafe.Add(p, headerSize), nil
}

// Free does nothing, arena memory is reclaimed by Reset.
func (a *Arena) Free(ptr unsafe.Pointer) {}

func (a *Arena) Realloc(ptr unsafe.Pointer, size uint) (unsafe.Pointer, error) {
	if ptr == nil {
		return a.Alloc(size)
	}
	size = max(size, 1)
	old := (*uint64)(unsafe.Add(ptr, -headerSize))
	if uint64(size) <= *old {
		*old = uint64(size)
		return ptr, nil
	}
	next, err := a.Alloc(size)
	if err != nil {
		return nil, err
	}
	copy(bytesAt(next, size), bytesAt(ptr, uint(*old)))
	return next, nil
}

func (a *Arena) AlignedAlloc(alignment, size uint) (unsafe.Pointer, error) {
	if err := checkAlignment(alignment, arenaMaxAlignment); err != nil {
		return nil, err
	}
	if alignment <= headerSize {
		return a.Alloc(size)
	}
	size = max(size, 1)
	if size > maxChunkSize {
		return nil, fmt.Errorf("arena aligned alloc %d bytes at %d: %w", size, alignment, ErrOutOfMemory)
	}
	n := headerSize + uint64(alignUp(uintptr(size), headerSize)) + uint64(alignment)
	p, err := a.a.alloc(n)
	if err != nil {
		return nil, fmt.Errorf("arena aligned alloc %d bytes at %d: %w", size, alignment, err)
	}
	shift := alignUp(uintptr(p)+headerSize, uintptr(alignment)) - uintptr(p)
	user := unsafe.Add(p, shift)
	*(*uint64)(unsafe.Add(user, -headerSize)) = uint64(size)
	return user, nil
}

func (a *Arena) AlignedFree(ptr unsafe.Pointer) {}

// Reset makes all memory handed out so far available again. Every
// pointer obtained before the call becomes invalid.
func (a *Arena) Reset() {
	a.a.reset()
}

// Release drops all chunks.
func (a *Arena) Release() {
	a.a.release()
}
