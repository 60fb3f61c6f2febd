package atomicbuf

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Buffer wraps a byte region for typed and atomic access. The zero value is
// unusable; construct with Wrap. Copies of a Buffer alias the same memory.
type Buffer struct {
	data []byte
}

// Wrap returns a Buffer over data without copying.
func Wrap(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Capacity returns the length of the wrapped region.
func (b *Buffer) Capacity() int32 { return int32(len(b.data)) }

// Bytes returns the underlying region. Mutations are visible to all aliases.
func (b *Buffer) Bytes() []byte { return b.data }

// Slice returns a Buffer aliasing the sub-range [offset, offset+length).
func (b *Buffer) Slice(offset, length int32) *Buffer {
	b.boundsCheck(offset, length)
	return &Buffer{data: b.data[offset : offset+length : offset+length]}
}

// GetInt32 reads a little-endian int32 at offset.
func (b *Buffer) GetInt32(offset int32) int32 {
	b.boundsCheck(offset, 4)
	return int32(binary.LittleEndian.Uint32(b.data[offset:]))
}

// PutInt32 writes a little-endian int32 at offset.
func (b *Buffer) PutInt32(offset int32, v int32) {
	b.boundsCheck(offset, 4)
	binary.LittleEndian.PutUint32(b.data[offset:], uint32(v))
}

// GetInt64 reads a little-endian int64 at offset.
func (b *Buffer) GetInt64(offset int32) int64 {
	b.boundsCheck(offset, 8)
	return int64(binary.LittleEndian.Uint64(b.data[offset:]))
}

// PutInt64 writes a little-endian int64 at offset.
func (b *Buffer) PutInt64(offset int32, v int64) {
	b.boundsCheck(offset, 8)
	binary.LittleEndian.PutUint64(b.data[offset:], uint64(v))
}

// GetUint8 reads a byte at offset.
func (b *Buffer) GetUint8(offset int32) uint8 {
	b.boundsCheck(offset, 1)
	return b.data[offset]
}

// PutUint8 writes a byte at offset.
func (b *Buffer) PutUint8(offset int32, v uint8) {
	b.boundsCheck(offset, 1)
	b.data[offset] = v
}

// GetUint16 reads a little-endian uint16 at offset.
func (b *Buffer) GetUint16(offset int32) uint16 {
	b.boundsCheck(offset, 2)
	return binary.LittleEndian.Uint16(b.data[offset:])
}

// PutUint16 writes a little-endian uint16 at offset.
func (b *Buffer) PutUint16(offset int32, v uint16) {
	b.boundsCheck(offset, 2)
	binary.LittleEndian.PutUint16(b.data[offset:], v)
}

// GetInt32Volatile reads an int32 at offset with acquire semantics.
func (b *Buffer) GetInt32Volatile(offset int32) int32 {
	b.alignCheck(offset, 4)
	return atomic.LoadInt32(b.int32Ptr(offset))
}

// PutInt32Ordered writes an int32 at offset with release semantics.
func (b *Buffer) PutInt32Ordered(offset int32, v int32) {
	b.alignCheck(offset, 4)
	atomic.StoreInt32(b.int32Ptr(offset), v)
}

// GetInt64Volatile reads an int64 at offset with acquire semantics.
func (b *Buffer) GetInt64Volatile(offset int32) int64 {
	b.alignCheck(offset, 8)
	return atomic.LoadInt64(b.int64Ptr(offset))
}

// PutInt64Ordered writes an int64 at offset with release semantics.
func (b *Buffer) PutInt64Ordered(offset int32, v int64) {
	b.alignCheck(offset, 8)
	atomic.StoreInt64(b.int64Ptr(offset), v)
}

// GetAndAddInt64 atomically adds delta to the int64 at offset and returns the
// previous value.
func (b *Buffer) GetAndAddInt64(offset int32, delta int64) int64 {
	b.alignCheck(offset, 8)
	return atomic.AddInt64(b.int64Ptr(offset), delta) - delta
}

// CompareAndSetInt64 atomically swaps the int64 at offset from expected to
// updated, reporting whether the swap happened.
func (b *Buffer) CompareAndSetInt64(offset int32, expected, updated int64) bool {
	b.alignCheck(offset, 8)
	return atomic.CompareAndSwapInt64(b.int64Ptr(offset), expected, updated)
}

// PutBytes copies src into the buffer at offset.
func (b *Buffer) PutBytes(offset int32, src []byte) {
	b.boundsCheck(offset, int32(len(src)))
	copy(b.data[offset:], src)
}

// GetBytes copies length bytes starting at offset into a new slice.
func (b *Buffer) GetBytes(offset, length int32) []byte {
	b.boundsCheck(offset, length)
	out := make([]byte, length)
	copy(out, b.data[offset:])
	return out
}

// SetMemory fills [offset, offset+length) with value.
func (b *Buffer) SetMemory(offset, length int32, value byte) {
	b.boundsCheck(offset, length)
	region := b.data[offset : offset+length]
	for i := range region {
		region[i] = value
	}
}

func (b *Buffer) int32Ptr(offset int32) *int32 {
	b.boundsCheck(offset, 4)
	return (*int32)(unsafe.Pointer(&b.data[offset]))
}

func (b *Buffer) int64Ptr(offset int32) *int64 {
	b.boundsCheck(offset, 8)
	return (*int64)(unsafe.Pointer(&b.data[offset]))
}

func (b *Buffer) boundsCheck(offset, length int32) {
	if offset < 0 || length < 0 || int(offset)+int(length) > len(b.data) {
		panic(fmt.Sprintf("atomicbuf: access [%d,+%d) out of range, capacity=%d", offset, length, len(b.data)))
	}
}

func (b *Buffer) alignCheck(offset, width int32) {
	if offset&(width-1) != 0 {
		panic(fmt.Sprintf("atomicbuf: atomic access at offset %d not aligned to %d", offset, width))
	}
}
