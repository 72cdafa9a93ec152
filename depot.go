package memkit

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/phuslu/log"
	"go.yuchanns.xyz/xxchan"
)

// depot is the pool-wide store of free small blocks. Threads spill into
// it when their cache grows past the limit or when they finalize, and
// refill from it before carving new blocks.
//
// Each class has a bounded ring living in page memory; blocks that do not
// fit go to an intrusive overflow list.
type depot struct {
	lock     sync.Mutex
	rings    [numClasses]*xxchan.Channel[unsafe.Pointer]
	backing  [numClasses]unsafe.Pointer
	overflow [numClasses]freeList
	count    [numClasses]int
}

func newDepot(capacity int) (*depot, error) {
	d := &depot{}
	sz := uint(xxchan.Sizeof[unsafe.Pointer](capacity))
	for class := range numClasses {
		ptr := pageAlloc(sz)
		if ptr == nil {
			d.release()
			return nil, fmt.Errorf("depot ring of %d bytes: %w", sz, ErrOutOfMemory)
		}
		clear(bytesAt(ptr, sz))
		d.backing[class] = ptr
		d.rings[class] = xxchan.Make[unsafe.Pointer](ptr, capacity)
	}
	return d, nil
}

func (d *depot) put(class int, block unsafe.Pointer) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.count[class]++
	if d.rings[class].Push(block) {
		return
	}
	if d.overflow[class].n == 0 {
		log.Debug().Msgf("Depot ring of class %d bytes is full, spilling to overflow list", classSizes[class])
	}
	d.overflow[class].push(block)
}

// putList moves a whole thread list into the depot.
func (d *depot) putList(class int, l *freeList) {
	if l.n == 0 {
		return
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	for block := l.pop(); block != nil; block = l.pop() {
		d.count[class]++
		if !d.rings[class].Push(block) {
			d.overflow[class].push(block)
		}
	}
}

func (d *depot) get(class int) unsafe.Pointer {
	d.lock.Lock()
	defer d.lock.Unlock()
	if block := d.overflow[class].pop(); block != nil {
		d.count[class]--
		return block
	}
	block, ok := d.rings[class].Pop()
	if !ok {
		return nil
	}
	d.count[class]--
	return block
}

func (d *depot) blocks() (n int) {
	d.lock.Lock()
	defer d.lock.Unlock()
	for _, c := range d.count {
		n += c
	}
	return
}

// release frees the rings. The blocks themselves live in arena chunks
// and go away with them.
func (d *depot) release() {
	d.lock.Lock()
	defer d.lock.Unlock()
	for class, ptr := range d.backing {
		if ptr == nil {
			continue
		}
		pageFree(ptr)
		d.backing[class] = nil
		d.rings[class] = nil
		d.overflow[class] = freeList{}
		d.count[class] = 0
	}
}
