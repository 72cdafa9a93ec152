package memkit

import (
	"bytes"
	"fmt"
	"unsafe"
)

// NotFound is what Memchr and IndexByte return when the byte is absent.
const NotFound = -1

// Memchr returns the offset of the first ch within the count bytes at
// ptr, or NotFound. It never reads past ptr[count-1].
func Memchr(ptr unsafe.Pointer, ch byte, count uint) int {
	if ptr == nil || count == 0 {
		return NotFound
	}
	return bytes.IndexByte(bytesAt(ptr, count), ch)
}

// Memcpy copies exactly count bytes from src to dest, whose capacity is
// destsz. The checks run in order:
//
//   - count == 0 succeeds without looking at the pointers,
//   - a nil pointer fails with ErrNullPointer,
//   - count > destsz fails with ErrBufferTooSmall,
//   - overlapping ranges fail with ErrOverlap, use Memmove instead.
//
// dest is never written when an error is returned.
func Memcpy(dest unsafe.Pointer, destsz uint, src unsafe.Pointer, count uint) error {
	if err := checkBounds("memcpy", dest, destsz, src, count); err != nil || count == 0 {
		return err
	}
	if overlaps(dest, src, count) {
		return fmt.Errorf("memcpy %d bytes from %p to %p: %w", count, src, dest, ErrOverlap)
	}
	copy(bytesAt(dest, count), bytesAt(src, count))
	return nil
}

// Memmove is Memcpy for ranges that may overlap. The result is the same
// as copying src through a temporary buffer.
func Memmove(dest unsafe.Pointer, destsz uint, src unsafe.Pointer, count uint) error {
	if err := checkBounds("memmove", dest, destsz, src, count); err != nil || count == 0 {
		return err
	}
	// copy picks the direction that never clobbers unread source bytes.
	copy(bytesAt(dest, count), bytesAt(src, count))
	return nil
}

func checkBounds(op string, dest unsafe.Pointer, destsz uint, src unsafe.Pointer, count uint) error {
	switch {
	case count == 0:
		return nil
	case dest == nil || src == nil:
		return fmt.Errorf("%s %d bytes: %w", op, count, ErrNullPointer)
	case count > destsz:
		return fmt.Errorf("%s %d bytes into %d: %w", op, count, destsz, ErrBufferTooSmall)
	}
	return nil
}

func overlaps(a, b unsafe.Pointer, n uint) bool {
	x, y := uintptr(a), uintptr(b)
	return x < y+uintptr(n) && y < x+uintptr(n)
}

// IndexByte is Memchr over the first length bytes of buf. length is
// clamped to len(buf).
func IndexByte(buf []byte, length int, ch byte) int {
	length = min(length, len(buf))
	if length <= 0 {
		return NotFound
	}
	return bytes.IndexByte(buf[:length], ch)
}

// CopyBytes is Memcpy with len(dst) as the capacity. A nil slice counts
// as a null pointer, and src must hold count bytes too.
func CopyBytes(dst, src []byte, count int) error {
	d, s, err := sliceArgs("copy", dst, src, count)
	if err != nil || count == 0 {
		return err
	}
	return Memcpy(d, uint(len(dst)), s, uint(count))
}

// MoveBytes is Memmove with len(dst) as the capacity.
func MoveBytes(dst, src []byte, count int) error {
	d, s, err := sliceArgs("move", dst, src, count)
	if err != nil || count == 0 {
		return err
	}
	return Memmove(d, uint(len(dst)), s, uint(count))
}

func sliceArgs(op string, dst, src []byte, count int) (d, s unsafe.Pointer, err error) {
	switch {
	case count < 0:
		err = fmt.Errorf("%s of %d bytes: %w", op, count, ErrBufferTooSmall)
	case count == 0:
	case dst == nil || src == nil:
		err = fmt.Errorf("%s %d bytes: %w", op, count, ErrNullPointer)
	case count > len(src):
		err = fmt.Errorf("%s %d bytes out of %d: %w", op, count, len(src), ErrBufferTooSmall)
	default:
		d, s = unsafe.Pointer(unsafe.SliceData(dst)), unsafe.Pointer(unsafe.SliceData(src))
	}
	return
}
