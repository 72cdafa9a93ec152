package memkit

import (
	"unsafe"

	"github.com/phuslu/log"
	"github.com/smasher164/mem"
)

// maxPageRequest caps a single page allocation well above any real
// request, so the header arithmetic inside mem.Alloc cannot wrap.
const maxPageRequest = 1 << 47

// pageAlloc maps size bytes off the Go heap. mem.Alloc panics when the
// operating system refuses to map more pages; that comes back as nil.
func pageAlloc(size uint) (ptr unsafe.Pointer) {
	if size == 0 || uint64(size) > maxPageRequest {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Msgf("Page allocation of %d bytes failed: %v", size, r)
			ptr = nil
		}
	}()
	return mem.Alloc(size)
}

func pageFree(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	mem.Free(ptr)
}
