package memkit

import (
	"fmt"
	"sync"

	"github.com/phuslu/log"
)

type poolState int32

const (
	stateUninitialized poolState = iota
	stateInitialized
	stateFinalized
)

func (s poolState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateInitialized:
		return "initialized"
	case stateFinalized:
		return "finalized"
	}
	return fmt.Sprintf("poolState(%d)", int32(s))
}

// lifecycle enforces uninitialized -> initialized -> (thread enter/exit)*
// -> finalized. A finalized pool may be initialized again.
type lifecycle struct {
	mu      sync.Mutex
	state   poolState
	threads int
}

func violation(format string, args ...any) error {
	assertf(false, format, args...)
	err := fmt.Errorf(format, args...)
	log.Warn().Err(err).Msg("pool lifecycle violation")
	return fmt.Errorf("%w: %w", ErrLifecycle, err)
}

func (l *lifecycle) init(setup func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == stateInitialized {
		return violation("init on an %s pool", l.state)
	}
	if err := setup(); err != nil {
		return err
	}
	l.state = stateInitialized
	return nil
}

func (l *lifecycle) threadEnter() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateInitialized {
		return violation("thread init on an %s pool", l.state)
	}
	l.threads++
	return nil
}

func (l *lifecycle) threadExit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateInitialized || l.threads == 0 {
		return violation("thread finalize on an %s pool with %d threads", l.state, l.threads)
	}
	l.threads--
	return nil
}

func (l *lifecycle) finalize(teardown func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateInitialized {
		return violation("finalize on an %s pool", l.state)
	}
	if l.threads != 0 {
		return violation("finalize with %d threads still registered", l.threads)
	}
	teardown()
	l.state = stateFinalized
	return nil
}

// inspect runs fn with the state held still, so fn may read whatever
// init and finalize set up or tear down.
func (l *lifecycle) inspect(fn func(state poolState, threads int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.state, l.threads)
}
