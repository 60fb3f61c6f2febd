package counters

import (
	"errors"
	"fmt"

	"github.com/rzbill/strand/internal/atomicbuf"
	"github.com/rzbill/strand/internal/mapped"
)

// SlotLength is the byte footprint of one counter, a full cache line.
const SlotLength int32 = 64

// ErrExhausted is returned when every slot has been allocated.
var ErrExhausted = errors.New("counters: file exhausted")

// File is a view over the shared counters region. Slot 0 is reserved for the
// allocation cursor; counters occupy slots 1..n-1.
type File struct {
	file *mapped.File
	buf  *atomicbuf.Buffer
}

// CreateFile creates a counters file with capacity for slotCount counters.
func CreateFile(path string, slotCount int32) (*File, error) {
	if slotCount < 1 {
		return nil, fmt.Errorf("counters: slot count %d must be positive", slotCount)
	}
	f, err := mapped.CreateFile(path, int64(slotCount+1)*int64(SlotLength))
	if err != nil {
		return nil, err
	}
	cf := &File{file: f, buf: atomicbuf.Wrap(f.Mem())}
	cf.buf.PutInt64(0, 1) // next free slot
	return cf, nil
}

// OpenFile maps an existing counters file.
func OpenFile(path string) (*File, error) {
	f, err := mapped.OpenFile(path)
	if err != nil {
		return nil, err
	}
	if int64(len(f.Mem()))%int64(SlotLength) != 0 || len(f.Mem()) < int(SlotLength) {
		f.Close()
		return nil, fmt.Errorf("counters: file length %d not a whole number of slots", len(f.Mem()))
	}
	return &File{file: f, buf: atomicbuf.Wrap(f.Mem())}, nil
}

// Wrap wraps an in-memory counters region for tests. The region must hold at
// least the header slot and have the header initialised by the caller to 1.
func Wrap(buf *atomicbuf.Buffer) *File {
	return &File{buf: buf}
}

// Allocate reserves the next free slot and returns its counter id.
func (f *File) Allocate() (int32, error) {
	id := f.buf.GetAndAddInt64(0, 1)
	if (id+1)*int64(SlotLength) > int64(f.buf.Capacity()) {
		return 0, ErrExhausted
	}
	return int32(id), nil
}

// Position returns the accessor for a counter id.
func (f *File) Position(id int32) *Position {
	offset := id * SlotLength
	if offset <= 0 || offset >= f.buf.Capacity() {
		panic(fmt.Sprintf("counters: id %d out of range", id))
	}
	return &Position{buf: f.buf, offset: offset}
}

// Close unmaps the backing file if any.
func (f *File) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

// Position reads and writes one 64-bit counter. Reads carry acquire
// semantics, writes release semantics, matching the publication-limit
// protocol: the driver only ever moves a limit forward.
type Position struct {
	buf    *atomicbuf.Buffer
	offset int32
}

// GetVolatile reads the counter with acquire semantics.
func (p *Position) GetVolatile() int64 { return p.buf.GetInt64Volatile(p.offset) }

// SetOrdered writes the counter with release semantics.
func (p *Position) SetOrdered(v int64) { p.buf.PutInt64Ordered(p.offset, v) }

// ProposeMaxOrdered raises the counter to v if v is greater than the current
// value. The counter stays monotonically non-decreasing under a single
// writer.
func (p *Position) ProposeMaxOrdered(v int64) bool {
	if v > p.GetVolatile() {
		p.SetOrdered(v)
		return true
	}
	return false
}
