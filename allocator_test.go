package memkit_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"go.yuchanns.xyz/memkit"
)

func newBackends(t *testing.T) map[string]memkit.Allocator {
	t.Helper()
	assert := require.New(t)

	system, err := memkit.NewSystem()
	assert.NoError(err)

	pool, err := memkit.NewPool(memkit.DefaultPoolConfig())
	assert.NoError(err)
	assert.NoError(pool.Init())
	thread, err := pool.ThreadInit()
	assert.NoError(err)
	t.Cleanup(func() {
		assert.NoError(thread.Finalize())
		assert.NoError(pool.Finalize())
	})

	arena, err := memkit.NewArena(1<<22, 64)
	assert.NoError(err)
	t.Cleanup(arena.Release)

	return map[string]memkit.Allocator{
		"system": system,
		"pooled": thread,
		"arena":  arena,
	}
}

func fill(ptr unsafe.Pointer, n uint, seed byte) {
	buf := unsafe.Slice((*byte)(ptr), n)
	for i := range buf {
		buf[i] = seed + byte(i)
	}
}

func requireFilled(assert *require.Assertions, ptr unsafe.Pointer, n uint, seed byte) {
	buf := unsafe.Slice((*byte)(ptr), n)
	for i := range buf {
		assert.Equal(seed+byte(i), buf[i], "byte %d", i)
	}
}

func TestAllocFree(t *testing.T) {
	t.Parallel()

	for name, mem := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			assert := require.New(t)
			for _, size := range []uint{0, 1, 7, 16, 100, 4096, 32768, 32769, 1 << 20} {
				ptr, err := mem.Alloc(size)
				assert.NoError(err, "size %d", size)
				assert.NotNil(ptr)
				assert.Zero(uintptr(ptr)%uintptr(mem.AlignmentBoundary()), "size %d", size)
				fill(ptr, size, byte(size))
				requireFilled(assert, ptr, size, byte(size))
				mem.Free(ptr)
			}
		})
	}
}

func TestAllocZeroIsUnique(t *testing.T) {
	t.Parallel()

	for name, mem := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			assert := require.New(t)
			a, err := mem.Alloc(0)
			assert.NoError(err)
			b, err := mem.Alloc(0)
			assert.NoError(err)
			assert.NotNil(a)
			assert.NotEqual(a, b)
			mem.Free(a)
			mem.Free(b)
		})
	}
}

func TestFreeNil(t *testing.T) {
	t.Parallel()

	for name, mem := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			mem.Free(nil)
			mem.AlignedFree(nil)
		})
	}
}

func TestAlignedAlloc(t *testing.T) {
	t.Parallel()

	for name, mem := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			assert := require.New(t)
			for alignment := uint(1); alignment <= 4096; alignment <<= 1 {
				for _, size := range []uint{1, 100, 5000} {
					ptr, err := mem.AlignedAlloc(alignment, size)
					assert.NoError(err, "alignment %d size %d", alignment, size)
					assert.Zero(uintptr(ptr)%uintptr(alignment), "alignment %d size %d", alignment, size)
					fill(ptr, size, byte(alignment))
					requireFilled(assert, ptr, size, byte(alignment))
					mem.AlignedFree(ptr)
				}
			}
		})
	}
}

func TestRealloc(t *testing.T) {
	t.Parallel()

	for name, mem := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			assert := require.New(t)

			ptr, err := mem.Realloc(nil, 10)
			assert.NoError(err)
			fill(ptr, 10, 42)

			// grow past every size class
			ptr, err = mem.Realloc(ptr, 100000)
			assert.NoError(err)
			requireFilled(assert, ptr, 10, 42)
			fill(ptr, 100000, 7)

			// and shrink back into one
			ptr, err = mem.Realloc(ptr, 5)
			assert.NoError(err)
			requireFilled(assert, ptr, 5, 7)

			ptr, err = mem.Realloc(ptr, 0)
			assert.NoError(err)
			assert.NotNil(ptr)
			mem.Free(ptr)
		})
	}
}

func TestReallocWithinClass(t *testing.T) {
	t.Parallel()
	assert := require.New(t)

	mem := newBackends(t)["pooled"]
	ptr, err := mem.Alloc(20)
	assert.NoError(err)
	fill(ptr, 20, 1)

	next, err := mem.Realloc(ptr, 30)
	assert.NoError(err)
	requireFilled(assert, next, 20, 1)
	mem.Free(next)
}

func TestHugeRequests(t *testing.T) {
	t.Parallel()

	sizes := []uint{^uint(0), ^uint(0) - 100, 1 << 50}
	for name, mem := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			assert := require.New(t)
			for _, size := range sizes {
				ptr, err := mem.Alloc(size)
				assert.ErrorIs(err, memkit.ErrOutOfMemory, "size %d", size)
				assert.Nil(ptr)

				for _, alignment := range []uint{16, 4096} {
					ptr, err = mem.AlignedAlloc(alignment, size)
					assert.ErrorIs(err, memkit.ErrOutOfMemory, "alignment %d size %d", alignment, size)
					assert.Nil(ptr)
				}
			}
		})
	}
}

func TestReallocFailureKeepsBlock(t *testing.T) {
	t.Parallel()

	for name, mem := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			assert := require.New(t)

			ptr, err := mem.Alloc(64)
			assert.NoError(err)
			fill(ptr, 64, 9)

			for _, size := range []uint{^uint(0) - 64, 1 << 50} {
				next, err := mem.Realloc(ptr, size)
				assert.ErrorIs(err, memkit.ErrOutOfMemory, "size %d", size)
				assert.Nil(next)
				requireFilled(assert, ptr, 64, 9)
			}
			mem.Free(ptr)
		})
	}
}
