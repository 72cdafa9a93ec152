package memkit

import (
	"fmt"
	"sync"

	"github.com/phuslu/log"
)

// SharedPool reference counts a Pool: the first Acquire initializes it,
// every Acquire registers a thread, and the Release of the last thread
// finalizes it again.
type SharedPool struct {
	lock sync.Mutex
	pool *Pool
	refs int
}

// NewSharedPool wraps a fresh pool built from config.
func NewSharedPool(config PoolConfig) (*SharedPool, error) {
	pool, err := NewPool(config)
	if err != nil {
		return nil, err
	}
	return &SharedPool{pool: pool}, nil
}

// Pool exposes the underlying pool, mostly for Stats.
func (s *SharedPool) Pool() *Pool {
	return s.pool
}

// Acquire returns a registered thread, initializing the pool on first use.
func (s *SharedPool) Acquire() (*Thread, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.refs == 0 {
		if err := s.pool.Init(); err != nil {
			return nil, err
		}
		log.Debug().Msg("Shared pool initialized")
	}
	t, err := s.pool.ThreadInit()
	if err != nil {
		if s.refs == 0 {
			_ = s.pool.Finalize()
		}
		return nil, err
	}
	s.refs++
	return t, nil
}

// Release finalizes t, and the pool when t was the last reference.
func (s *SharedPool) Release(t *Thread) error {
	if t.pool != s.pool {
		return violation("release of thread %d owned by another pool", t.id)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := t.Finalize(); err != nil {
		return err
	}
	s.refs--
	if s.refs > 0 {
		return nil
	}
	if err := s.pool.Finalize(); err != nil {
		return fmt.Errorf("shared pool: %w", err)
	}
	log.Debug().Msg("Shared pool finalized")
	return nil
}

// Refs reports how many threads are currently acquired.
func (s *SharedPool) Refs() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.refs
}
