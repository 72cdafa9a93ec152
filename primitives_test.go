package memkit_test

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"go.yuchanns.xyz/memkit"
)

func ptrOf(buf []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(buf))
}

func TestMemchr(t *testing.T) {
	t.Parallel()
	assert := require.New(t)

	buf := []byte{5, 3, 9, 3}
	assert.Equal(1, memkit.Memchr(ptrOf(buf), 3, 4))
	assert.Equal(0, memkit.Memchr(ptrOf(buf), 5, 4))
	assert.Equal(memkit.NotFound, memkit.Memchr(ptrOf(buf), 7, 4))
	assert.Equal(memkit.NotFound, memkit.Memchr(ptrOf(buf), 3, 0))
	assert.Equal(memkit.NotFound, memkit.Memchr(nil, 3, 4))
	// only the first count bytes are looked at
	assert.Equal(memkit.NotFound, memkit.Memchr(ptrOf(buf), 9, 2))
	assert.Equal(2, memkit.Memchr(ptrOf(buf), 9, 3))
}

func TestIndexByte(t *testing.T) {
	t.Parallel()
	assert := require.New(t)

	buf := []byte{5, 3, 9, 3}
	assert.Equal(1, memkit.IndexByte(buf, 4, 3))
	assert.Equal(memkit.NotFound, memkit.IndexByte(buf, 4, 7))
	assert.Equal(memkit.NotFound, memkit.IndexByte(buf, 0, 5))
	assert.Equal(memkit.NotFound, memkit.IndexByte(buf, -1, 5))
	assert.Equal(memkit.NotFound, memkit.IndexByte(nil, 4, 5))
	assert.Equal(0, memkit.IndexByte(buf[1:], 100, 3))
	assert.Equal(1, memkit.IndexByte(buf[1:], 100, 9))
}

func TestMemcpy(t *testing.T) {
	t.Parallel()
	assert := require.New(t)

	src := []byte{1, 2, 3, 4, 5}
	dest := []byte{9, 9, 9, 9}

	err := memkit.Memcpy(ptrOf(dest), 4, ptrOf(src), 5)
	assert.ErrorIs(err, memkit.ErrBufferTooSmall)
	assert.Equal([]byte{9, 9, 9, 9}, dest)

	assert.ErrorIs(memkit.Memcpy(nil, 4, ptrOf(src), 4), memkit.ErrNullPointer)
	assert.ErrorIs(memkit.Memcpy(ptrOf(dest), 4, nil, 4), memkit.ErrNullPointer)
	assert.Equal([]byte{9, 9, 9, 9}, dest)

	assert.NoError(memkit.Memcpy(ptrOf(dest), 4, ptrOf(src), 4))
	assert.Equal([]byte{1, 2, 3, 4}, dest)

	assert.NoError(memkit.Memcpy(ptrOf(dest), 4, ptrOf(src[3:]), 2))
	assert.Equal([]byte{4, 5, 3, 4}, dest)
}

func TestMemcpyOverlap(t *testing.T) {
	t.Parallel()
	assert := require.New(t)

	region := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	err := memkit.Memcpy(ptrOf(region[2:]), 8, ptrOf(region), 4)
	assert.ErrorIs(err, memkit.ErrOverlap)
	assert.Equal([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, region)

	// adjacent ranges do not overlap
	assert.NoError(memkit.Memcpy(ptrOf(region[4:]), 6, ptrOf(region), 4))
	assert.Equal([]byte{0, 1, 2, 3, 0, 1, 2, 3, 8, 9}, region)

	// capacity is checked before overlap
	err = memkit.Memcpy(ptrOf(region[1:]), 2, ptrOf(region), 4)
	assert.ErrorIs(err, memkit.ErrBufferTooSmall)
}

func TestMemmove(t *testing.T) {
	t.Parallel()
	assert := require.New(t)

	region := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.NoError(memkit.Memmove(ptrOf(region[2:]), 8, ptrOf(region), 8))
	assert.Equal([]byte{0, 1, 0, 1, 2, 3, 4, 5, 6, 7}, region)

	region = []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.NoError(memkit.Memmove(ptrOf(region), 10, ptrOf(region[2:]), 8))
	assert.Equal([]byte{2, 3, 4, 5, 6, 7, 8, 9, 8, 9}, region)

	region = []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	err := memkit.Memmove(ptrOf(region[2:]), 7, ptrOf(region), 8)
	assert.ErrorIs(err, memkit.ErrBufferTooSmall)
	assert.Equal([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, region)

	assert.ErrorIs(memkit.Memmove(nil, 10, ptrOf(region), 1), memkit.ErrNullPointer)
}

func TestMoveBytesMatchesTemporaryCopy(t *testing.T) {
	t.Parallel()
	assert := require.New(t)

	const size = 10
	for from := range size {
		for to := range size {
			for n := 0; n <= size-max(from, to); n++ {
				region := make([]byte, size)
				for i := range region {
					region[i] = byte(i + 1)
				}
				expected := bytes.Clone(region)
				tmp := bytes.Clone(expected[from : from+n])
				copy(expected[to:], tmp)

				assert.NoError(memkit.MoveBytes(region[to:], region[from:], n), "from %d to %d n %d", from, to, n)
				assert.Equal(expected, region, "from %d to %d n %d", from, to, n)
			}
		}
	}
}

func TestCopyBytes(t *testing.T) {
	t.Parallel()
	assert := require.New(t)

	src := []byte{1, 2, 3, 4, 5}
	dst := make([]byte, 4)

	assert.ErrorIs(memkit.CopyBytes(dst, src, 5), memkit.ErrBufferTooSmall)
	assert.Equal(make([]byte, 4), dst)
	assert.ErrorIs(memkit.CopyBytes(dst, src[:2], 3), memkit.ErrBufferTooSmall)
	assert.ErrorIs(memkit.CopyBytes(dst, src, -1), memkit.ErrBufferTooSmall)
	assert.ErrorIs(memkit.CopyBytes(nil, src, 1), memkit.ErrNullPointer)
	assert.ErrorIs(memkit.CopyBytes(dst, nil, 1), memkit.ErrNullPointer)
	assert.ErrorIs(memkit.CopyBytes(src[1:], src, 3), memkit.ErrOverlap)

	assert.NoError(memkit.CopyBytes(dst, src, 4))
	assert.Equal([]byte{1, 2, 3, 4}, dst)
}

func TestZeroLength(t *testing.T) {
	t.Parallel()
	assert := require.New(t)

	assert.NoError(memkit.Memcpy(nil, 0, nil, 0))
	assert.NoError(memkit.Memmove(nil, 0, nil, 0))
	assert.NoError(memkit.CopyBytes(nil, nil, 0))
	assert.NoError(memkit.MoveBytes(nil, nil, 0))

	region := []byte{1, 2, 3}
	assert.NoError(memkit.Memcpy(ptrOf(region), 0, ptrOf(region), 0))
	assert.Equal([]byte{1, 2, 3}, region)
}
