// Package memkit is a small facade over interchangeable memory backends
// plus bounds-checked memory primitives.
//
// Three backends implement Allocator:
//
//   - System passes straight through to the platform C allocator.
//   - Thread is a registered cache of a Pool, a thread-caching allocator
//     that needs explicit Init / ThreadInit / Finalize calls.
//   - Arena is a bump allocator whose Free is a no-op.
//
// There is no global allocator. Pick one and pass it to whoever needs it.
// Memory must be released through the backend that produced it, and
// AlignedAlloc results must be released with AlignedFree. Use-after-free,
// double free and mixing backends are not detected.
package memkit

import (
	"fmt"
	"math/bits"
	"unsafe"
)

// Allocator is the capability set every backend provides.
//
// A size of 0 is treated as 1, so Alloc(0) returns a unique address.
// Returned memory is not zeroed.
type Allocator interface {
	// Alloc returns size bytes aligned to AlignmentBoundary.
	Alloc(size uint) (unsafe.Pointer, error)
	// Free releases ptr. Free(nil) is a no-op.
	Free(ptr unsafe.Pointer)
	// Realloc resizes ptr, keeping min(old, new) bytes. The old address
	// is invalid after a successful call even if the same address comes
	// back. On failure ptr is left untouched.
	Realloc(ptr unsafe.Pointer, size uint) (unsafe.Pointer, error)
	// AlignedAlloc returns size bytes at a multiple of alignment, which
	// must be a power of two not above the backend maximum.
	AlignedAlloc(alignment, size uint) (unsafe.Pointer, error)
	// AlignedFree releases memory obtained from AlignedAlloc.
	AlignedFree(ptr unsafe.Pointer)
	// AlignmentBoundary is the alignment every Alloc result satisfies.
	AlignmentBoundary() uint
}

// headerSize is the bookkeeping prefix in front of Arena and Pool blocks.
// It keeps payloads on a 16 byte boundary.
const headerSize = 16

const ptrSize = uint(unsafe.Sizeof(uintptr(0)))

func isPow2(x uint) bool {
	return x != 0 && x&(x-1) == 0
}

func alignPow2(x uint) uint {
	if x <= 1 {
		return 1
	}
	return 1 << bits.Len(x-1)
}

func alignUp(x, alignment uintptr) uintptr {
	return (x + alignment - 1) &^ (alignment - 1)
}

func checkAlignment(alignment, maxAlignment uint) error {
	if isPow2(alignment) && alignment <= maxAlignment {
		return nil
	}
	assertf(false, "alignment %d is not a power of two up to %d", alignment, maxAlignment)
	return fmt.Errorf("alignment %d (max %d): %w", alignment, maxAlignment, ErrInvalidAlignment)
}

func bytesAt(ptr unsafe.Pointer, n uint) []byte {
	return unsafe.Slice((*byte)(ptr), n)
}
