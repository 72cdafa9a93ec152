package memkit

import "errors"

// Errors returned by the allocators and the bounded primitives.
// Returned errors wrap one of these, use errors.Is to tell them apart.
var (
	ErrOutOfMemory      = errors.New("out of memory")
	ErrInvalidAlignment = errors.New("invalid alignment")
	ErrBufferTooSmall   = errors.New("buffer too small")
	ErrOverlap          = errors.New("source and destination overlap")
	ErrNullPointer      = errors.New("null pointer")
	ErrInitFailed       = errors.New("allocator initialization failed")
	ErrLifecycle        = errors.New("allocator lifecycle violation")
)
