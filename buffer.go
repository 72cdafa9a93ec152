package memkit

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
	"unicode/utf8"
	"unsafe"
)

// WriteBuffer accumulates bytes in memory obtained from an Allocator and
// grows through Realloc. It is not safe for concurrent use.
type WriteBuffer struct {
	mem     Allocator
	initial uint

	raw unsafe.Pointer
	cap uint
	n   uint
	// reserved is set while raw points into caller memory.
	reserved bool
}

// NewWriteBuffer returns an empty buffer whose first allocation is at
// least size bytes.
func NewWriteBuffer(mem Allocator, size uint) *WriteBuffer {
	return &WriteBuffer{mem: mem, initial: size}
}

// NewReservedWriteBuffer writes into buf until it is full and moves to
// memory from mem afterwards. buf stays owned by the caller.
func NewReservedWriteBuffer(mem Allocator, buf []byte) *WriteBuffer {
	b := &WriteBuffer{mem: mem}
	if len(buf) > 0 {
		b.raw = unsafe.Pointer(unsafe.SliceData(buf))
		b.cap = uint(len(buf))
		b.reserved = true
	}
	return b
}

// Len is the number of bytes written.
func (b *WriteBuffer) Len() int {
	return int(b.n)
}

// Cap is the size of the current backing block.
func (b *WriteBuffer) Cap() int {
	return int(b.cap)
}

// Reserved reports whether the buffer still writes into caller memory.
func (b *WriteBuffer) Reserved() bool {
	return b.reserved
}

// Bytes returns the written bytes. The slice aliases the buffer and is
// valid until the next write or Close.
func (b *WriteBuffer) Bytes() []byte {
	if b.n == 0 {
		return nil
	}
	return bytesAt(b.raw, b.n)
}

// Reader returns a ReadBuffer over the written bytes.
func (b *WriteBuffer) Reader() *ReadBuffer {
	return NewReadBuffer(b.Bytes())
}

// Reset empties the buffer and keeps its memory.
func (b *WriteBuffer) Reset() {
	b.n = 0
}

// Close releases the memory the buffer allocated.
func (b *WriteBuffer) Close() {
	if !b.reserved && b.raw != nil {
		b.mem.Free(b.raw)
	}
	*b = WriteBuffer{mem: b.mem, initial: b.initial}
}

// growCap is the next power of two above n, or 0 on overflow.
func growCap(n uint) uint {
	if n >= 1<<(bits.UintSize-1) {
		return 0
	}
	return 1 << bits.Len(n)
}

func (b *WriteBuffer) grow(next uint) error {
	size := growCap(next)
	if size == 0 {
		return fmt.Errorf("write buffer of %d bytes: %w", next, ErrOutOfMemory)
	}
	var (
		raw unsafe.Pointer
		err error
	)
	switch {
	case b.raw == nil:
		size = max(size, b.initial)
		raw, err = b.mem.Alloc(size)
	case b.reserved:
		if raw, err = b.mem.Alloc(size); err == nil {
			err = CopyBytes(bytesAt(raw, size), bytesAt(b.raw, b.n), int(b.n))
			if err != nil {
				b.mem.Free(raw)
			}
		}
	default:
		raw, err = b.mem.Realloc(b.raw, size)
	}
	if err != nil {
		return fmt.Errorf("write buffer grow to %d bytes: %w", size, err)
	}
	b.raw, b.cap, b.reserved = raw, size, false
	return nil
}

// reserve makes room for n more bytes and returns them. Nothing changes
// when it fails.
func (b *WriteBuffer) reserve(n uint) ([]byte, error) {
	next := b.n + n
	if next < b.n {
		return nil, fmt.Errorf("write buffer of %d bytes: %w", b.n, ErrOutOfMemory)
	}
	if next > b.cap {
		if err := b.grow(next); err != nil {
			return nil, err
		}
	}
	dst := bytesAt(unsafe.Add(b.raw, b.n), n)
	b.n = next
	return dst, nil
}

func (b *WriteBuffer) WriteByte(c byte) error {
	dst, err := b.reserve(1)
	if err != nil {
		return err
	}
	dst[0] = c
	return nil
}

func (b *WriteBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	dst, err := b.reserve(uint(len(p)))
	if err != nil {
		return 0, err
	}
	copy(dst, p)
	return len(p), nil
}

func (b *WriteBuffer) WriteString(s string) (int, error) {
	return b.Write(unsafe.Slice(unsafe.StringData(s), len(s)))
}

// WriteCString writes s followed by a NUL byte.
func (b *WriteBuffer) WriteCString(s string) error {
	dst, err := b.reserve(uint(len(s)) + 1)
	if err != nil {
		return err
	}
	dst[copy(dst, s)] = 0
	return nil
}

// WriteRune writes the UTF-8 encoding of r.
func (b *WriteBuffer) WriteRune(r rune) (int, error) {
	var enc [utf8.UTFMax]byte
	return b.Write(utf8.AppendRune(enc[:0], r))
}

func (b *WriteBuffer) WriteUint16(v uint16, order binary.ByteOrder) error {
	dst, err := b.reserve(2)
	if err != nil {
		return err
	}
	order.PutUint16(dst, v)
	return nil
}

func (b *WriteBuffer) WriteUint32(v uint32, order binary.ByteOrder) error {
	dst, err := b.reserve(4)
	if err != nil {
		return err
	}
	order.PutUint32(dst, v)
	return nil
}

func (b *WriteBuffer) WriteUint64(v uint64, order binary.ByteOrder) error {
	dst, err := b.reserve(8)
	if err != nil {
		return err
	}
	order.PutUint64(dst, v)
	return nil
}

func (b *WriteBuffer) WriteFloat32(v float32, order binary.ByteOrder) error {
	return b.WriteUint32(math.Float32bits(v), order)
}

func (b *WriteBuffer) WriteFloat64(v float64, order binary.ByteOrder) error {
	return b.WriteUint64(math.Float64bits(v), order)
}

// ReadBuffer reads typed values off a byte slice with a moving index.
// Failed reads leave the index where it was.
type ReadBuffer struct {
	buf   []byte
	index int
}

func NewReadBuffer(buf []byte) *ReadBuffer {
	return &ReadBuffer{buf: buf}
}

func (r *ReadBuffer) Index() int {
	return r.index
}

// SetIndex moves the read index anywhere in [0, Size()].
func (r *ReadBuffer) SetIndex(index int) error {
	if index < 0 || index > len(r.buf) {
		return fmt.Errorf("index %d outside %d bytes: %w", index, len(r.buf), ErrBufferTooSmall)
	}
	r.index = index
	return nil
}

func (r *ReadBuffer) Available() int {
	return len(r.buf) - r.index
}

func (r *ReadBuffer) Size() int {
	return len(r.buf)
}

// Copy returns a copy of buf[start:end].
func (r *ReadBuffer) Copy(start, end int) ([]byte, error) {
	if start < 0 || start > end || end > len(r.buf) {
		return nil, fmt.Errorf("copy [%d, %d) of %d bytes: %w", start, end, len(r.buf), ErrBufferTooSmall)
	}
	out := make([]byte, end-start)
	if err := CopyBytes(out, r.buf[start:end], len(out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ReadBuffer) next(n int) ([]byte, error) {
	if n > r.Available() {
		return nil, fmt.Errorf("read %d bytes at %d of %d: %w", n, r.index, len(r.buf), io.ErrUnexpectedEOF)
	}
	p := r.buf[r.index : r.index+n]
	r.index += n
	return p, nil
}

func (r *ReadBuffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.Available() == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.index:])
	r.index += n
	return n, nil
}

func (r *ReadBuffer) ReadByte() (byte, error) {
	if r.Available() == 0 {
		return 0, io.EOF
	}
	c := r.buf[r.index]
	r.index++
	return c, nil
}

func (r *ReadBuffer) ReadUint16(order binary.ByteOrder) (uint16, error) {
	p, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(p), nil
}

func (r *ReadBuffer) ReadUint32(order binary.ByteOrder) (uint32, error) {
	p, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(p), nil
}

func (r *ReadBuffer) ReadUint64(order binary.ByteOrder) (uint64, error) {
	p, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(p), nil
}

func (r *ReadBuffer) ReadFloat32(order binary.ByteOrder) (float32, error) {
	v, err := r.ReadUint32(order)
	return math.Float32frombits(v), err
}

func (r *ReadBuffer) ReadFloat64(order binary.ByteOrder) (float64, error) {
	v, err := r.ReadUint64(order)
	return math.Float64frombits(v), err
}

// Search looks for ch from the read index on. When found, the index moves
// just past it and the new index is returned; otherwise the index stays
// and Search returns NotFound.
func (r *ReadBuffer) Search(ch byte) int {
	rest := r.buf[r.index:]
	i := IndexByte(rest, len(rest), ch)
	if i == NotFound {
		return NotFound
	}
	r.index += i + 1
	return r.index
}
