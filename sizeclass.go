package memkit

import (
	"sort"
	"unsafe"
)

// classSizes are the payload sizes served from thread caches. Anything
// larger goes straight to the page allocator.
var classSizes = [...]uint{
	16, 32, 48, 64, 96, 128, 192, 256, 384, 512, 768, 1024,
	1536, 2048, 3072, 4096, 6144, 8192, 12288, 16384, 24576, 32768,
}

const (
	numClasses   = len(classSizes)
	maxClassSize = 32768
	largeClass   = ^uint32(0)
)

// classOf returns the smallest class holding size bytes.
func classOf(size uint) (int, bool) {
	if size > maxClassSize {
		return 0, false
	}
	return sort.Search(numClasses, func(i int) bool { return classSizes[i] >= size }), true
}

// blockHeader sits right in front of every pool payload.
type blockHeader struct {
	// size is the size the caller asked for.
	size uint64
	// class indexes classSizes, or is largeClass.
	class uint32
	// offset is the distance from the raw page allocation to the payload,
	// large blocks only.
	offset uint32
}

func headerOf(ptr unsafe.Pointer) *blockHeader {
	return (*blockHeader)(unsafe.Add(ptr, -headerSize))
}

// A free block stores the next pointer of its list in its first payload
// word.

type freeList struct {
	head unsafe.Pointer
	n    int
}

func (l *freeList) push(ptr unsafe.Pointer) {
	*(*unsafe.Pointer)(ptr) = l.head
	l.head = ptr
	l.n++
}

func (l *freeList) pop() (ptr unsafe.Pointer) {
	ptr = l.head
	if ptr == nil {
		return
	}
	l.head = *(*unsafe.Pointer)(ptr)
	l.n--
	return
}
