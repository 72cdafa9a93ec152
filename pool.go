package memkit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/phuslu/log"
)

// Pool is a thread-caching allocator. Small blocks are served from
// per-thread free lists backed by a shared depot and by chunks carved out
// of page memory; large blocks go straight to the page allocator.
//
// The lifecycle is strict: Init, then ThreadInit for every goroutine that
// allocates or frees, Thread.Finalize before that goroutine is done with
// the pool, and Finalize once every thread has finalized. Violations are
// reported as ErrLifecycle and panic in debug builds.
type Pool struct {
	config PoolConfig
	state  lifecycle

	arena *arena
	depot *depot

	// large tracks page allocations so Finalize can release the leftovers.
	largeLock sync.Mutex
	large     map[unsafe.Pointer]struct{}

	threadID atomic.Uint64
}

// PoolStats is a point-in-time view of a pool.
type PoolStats struct {
	Initialized   bool
	ActiveThreads int
	Chunks        int
	DepotBlocks   int
	LargeBlocks   int
}

// NewPool validates config and returns an uninitialized pool.
func NewPool(config PoolConfig) (*Pool, error) {
	config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("pool config: %w", err)
	}
	return &Pool{config: config}, nil
}

// Config returns the normalized settings of the pool.
func (p *Pool) Config() PoolConfig {
	return p.config
}

// MaxAlignment is the largest alignment AlignedAlloc accepts.
func (p *Pool) MaxAlignment() uint {
	return p.config.MaxAlignment
}

// Init sets up the pool-wide state. It must precede every ThreadInit.
func (p *Pool) Init() error {
	return p.state.init(func() error {
		d, err := newDepot(int(p.config.DepotCapacity))
		if err != nil {
			return fmt.Errorf("pool init: %w: %w", ErrInitFailed, err)
		}
		p.depot = d
		p.arena = newArena(uint64(p.config.ChunkSize), p.config.MaxChunks, &pageChunks{})
		p.large = make(map[unsafe.Pointer]struct{})
		log.Debug().Msgf("Pool initialized, chunk size %d, depot capacity %d", p.config.ChunkSize, p.config.DepotCapacity)
		return nil
	})
}

// ThreadInit registers a new thread cache. The returned Thread must be
// used by one goroutine at a time and finalized before the pool is.
func (p *Pool) ThreadInit() (*Thread, error) {
	if err := p.state.threadEnter(); err != nil {
		return nil, err
	}
	t := &Thread{pool: p, id: p.threadID.Add(1)}
	log.Debug().Msgf("Pool thread %d registered", t.id)
	return t, nil
}

// Finalize releases every chunk, the depot and any large block still
// outstanding. All threads must have finalized.
func (p *Pool) Finalize() error {
	return p.state.finalize(func() {
		p.largeLock.Lock()
		leaked := len(p.large)
		for raw := range p.large {
			pageFree(raw)
		}
		p.large = nil
		p.largeLock.Unlock()
		if leaked > 0 {
			log.Warn().Msgf("Pool finalized with %d large blocks still allocated", leaked)
		}

		chunks := p.arena.chunkCount()
		p.depot.release()
		p.arena.release()
		log.Debug().Msgf("Pool finalized, released %d chunks", chunks)
	})
}

// Stats reports the current pool usage. It may run concurrently with
// every other pool and thread call.
func (p *Pool) Stats() (stats PoolStats) {
	p.state.inspect(func(state poolState, threads int) {
		stats.Initialized = state == stateInitialized
		stats.ActiveThreads = threads
		if !stats.Initialized {
			return
		}
		stats.Chunks = p.arena.chunkCount()
		stats.DepotBlocks = p.depot.blocks()
		p.largeLock.Lock()
		stats.LargeBlocks = len(p.large)
		p.largeLock.Unlock()
	})
	return
}

// carve takes a fresh block of class out of the arena and returns its
// payload.
func (p *Pool) carve(class int) (unsafe.Pointer, error) {
	block, err := p.arena.alloc(uint64(headerSize + classSizes[class]))
	if err != nil {
		return nil, err
	}
	return unsafe.Add(block, headerSize), nil
}

// allocLarge maps size bytes at alignment straight from the page allocator.
func (p *Pool) allocLarge(size, alignment uint) (unsafe.Pointer, error) {
	total := headerSize + size + alignment
	if uint64(size) > maxPageRequest || total < size {
		return nil, fmt.Errorf("pool alloc %d bytes: %w", size, ErrOutOfMemory)
	}

	p.largeLock.Lock()
	defer p.largeLock.Unlock()
	raw := pageAlloc(total)
	if raw == nil {
		return nil, fmt.Errorf("pool alloc %d bytes: %w", size, ErrOutOfMemory)
	}
	p.large[raw] = struct{}{}

	shift := alignUp(uintptr(raw)+headerSize, uintptr(alignment)) - uintptr(raw)
	ptr := unsafe.Add(raw, shift)
	*headerOf(ptr) = blockHeader{size: uint64(size), class: largeClass, offset: uint32(shift)}
	return ptr, nil
}

func (p *Pool) freeLarge(ptr unsafe.Pointer) {
	raw := unsafe.Add(ptr, -int(headerOf(ptr).offset))
	p.largeLock.Lock()
	defer p.largeLock.Unlock()
	delete(p.large, raw)
	pageFree(raw)
}
