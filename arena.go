package memkit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/phuslu/log"
)

const (
	chunkAlign   = headerSize
	maxChunkSize = 1 << 30
)

// cursor packs the current chunk index in the high 32 bits and the offset
// inside that chunk in the low 32 bits, so a bump is a single atomic add.
type cursor uint64

func (c *cursor) load() (chunk, offset uint64) {
	v := atomic.LoadUint64((*uint64)(c))
	offset = v & 0xFFFFFFFF
	chunk = v >> 32
	return
}

func (c *cursor) add(size uint64) (chunk, offset uint64) {
	v := atomic.AddUint64((*uint64)(c), size)
	offset = v & 0xFFFFFFFF
	chunk = v >> 32
	return
}

// advance moves the cursor to the start of chunk+1, unless somebody else
// has moved past chunk already.
func (c *cursor) advance(chunk uint64) bool {
	for {
		v := atomic.LoadUint64((*uint64)(c))
		if v>>32 != chunk {
			return false
		}
		if atomic.CompareAndSwapUint64((*uint64)(c), v, (chunk+1)<<32) {
			return true
		}
	}
}

func (c *cursor) reset(chunk, offset uint64) bool {
	return atomic.CompareAndSwapUint64((*uint64)(c), chunk<<32|offset, 0)
}

// chunkSource hands out chunkAlign aligned chunks and takes them all back
// at once.
type chunkSource interface {
	allocChunk(size uint64) unsafe.Pointer
	releaseAll()
}

// heapChunks keeps chunks on the Go heap; the arena holds them alive.
type heapChunks struct {
	bufs [][]byte
}

func (h *heapChunks) allocChunk(size uint64) unsafe.Pointer {
	buf := make([]byte, size+chunkAlign)
	h.bufs = append(h.bufs, buf)
	base := unsafe.Pointer(unsafe.SliceData(buf))
	return unsafe.Add(base, alignUp(uintptr(base), chunkAlign)-uintptr(base))
}

func (h *heapChunks) releaseAll() {
	h.bufs = nil
}

// pageChunks takes chunks from the off-heap page allocator.
type pageChunks struct {
	raw []unsafe.Pointer
}

func (p *pageChunks) allocChunk(size uint64) unsafe.Pointer {
	raw := pageAlloc(uint(size + chunkAlign))
	if raw == nil {
		return nil
	}
	p.raw = append(p.raw, raw)
	return unsafe.Add(raw, alignUp(uintptr(raw), chunkAlign)-uintptr(raw))
}

func (p *pageChunks) releaseAll() {
	for _, raw := range p.raw {
		pageFree(raw)
	}
	p.raw = nil
}

// arena is a lock-free bump allocator over a bounded list of chunks.
// Only growing takes the lock.
type arena struct {
	lock      sync.Mutex
	chunkSize uint64
	source    chunkSource

	cursor cursor
	// chunks has a fixed length; entries are published atomically so the
	// fast path never reads a slice header that grow is writing.
	chunks []unsafe.Pointer
	used   atomic.Int32
}

func newArena(chunkSize uint64, limit int, source chunkSource) *arena {
	if chunkSize > maxChunkSize {
		panic("chunk size too large")
	}
	return &arena{
		chunkSize: chunkSize,
		source:    source,
		chunks:    make([]unsafe.Pointer, limit),
	}
}

func (a *arena) chunk(i uint64) unsafe.Pointer {
	if i >= uint64(len(a.chunks)) {
		return nil
	}
	return atomic.LoadPointer(&a.chunks[i])
}

// alloc returns n bytes at a chunkAlign boundary. n must be a multiple of
// chunkAlign.
func (a *arena) alloc(n uint64) (unsafe.Pointer, error) {
	if n > a.chunkSize {
		return nil, fmt.Errorf("object size %d is larger than chunk size %d: %w", n, a.chunkSize, ErrOutOfMemory)
	}
	for {
		chunk, next := a.cursor.add(n)
		if next <= a.chunkSize {
			base := a.chunk(chunk)
			if base == nil {
				var err error
				if base, err = a.ensure(chunk); err != nil {
					return nil, err
				}
			}
			return unsafe.Add(base, next-n), nil
		}
		if err := a.grow(chunk); err != nil {
			return nil, err
		}
	}
}

// ensure maps chunk i on first use, after creation or release.
func (a *arena) ensure(i uint64) (unsafe.Pointer, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if err := a.mapChunk(i); err != nil {
		return nil, err
	}
	return a.chunk(i), nil
}

// grow makes sure the chunk after the exhausted one exists and moves the
// cursor onto it. Losing the race to another grower is fine, the caller
// simply bumps again.
func (a *arena) grow(chunk uint64) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if actual, _ := a.cursor.load(); actual != chunk {
		return nil
	}
	if err := a.mapChunk(chunk + 1); err != nil {
		return err
	}
	a.cursor.advance(chunk)
	return nil
}

func (a *arena) mapChunk(i uint64) error {
	if a.chunk(i) != nil {
		return nil
	}
	if i >= uint64(len(a.chunks)) {
		return fmt.Errorf("arena limit of %d chunks reached: %w", len(a.chunks), ErrOutOfMemory)
	}
	base := a.source.allocChunk(a.chunkSize)
	if base == nil {
		return fmt.Errorf("map chunk of %d bytes: %w", a.chunkSize, ErrOutOfMemory)
	}
	atomic.StorePointer(&a.chunks[i], base)
	a.used.Add(1)
	log.Debug().Msgf("Arena mapped chunk %d of %d bytes", i, a.chunkSize)
	return nil
}

// reset rewinds the cursor, keeping the chunks for reuse. It must not race
// with alloc.
func (a *arena) reset() {
	a.lock.Lock()
	defer a.lock.Unlock()
	chunk, offset := a.cursor.load()
	if !a.cursor.reset(chunk, offset) {
		panic("reset failed, another goroutine is using the arena")
	}
}

// release rewinds the cursor and returns every chunk to its source.
func (a *arena) release() {
	a.lock.Lock()
	defer a.lock.Unlock()
	atomic.StoreUint64((*uint64)(&a.cursor), 0)
	for i := range a.chunks {
		atomic.StorePointer(&a.chunks[i], nil)
	}
	a.used.Store(0)
	a.source.releaseAll()
}

func (a *arena) chunkCount() int {
	return int(a.used.Load())
}
