package logbuffer

import (
	"fmt"
	"math/bits"

	"github.com/rzbill/strand/internal/atomicbuf"
)

// Log layout constants.
const (
	// PartitionCount is the number of term buffers a log rotates through.
	PartitionCount = 3

	// TermMinLength and TermMaxLength bound valid term buffer sizes.
	TermMinLength int32 = 64 * 1024
	TermMaxLength int32 = 1 << 30

	// LogMetaDataSectionIndex is the buffer index of the metadata section,
	// directly after the term partitions.
	LogMetaDataSectionIndex = PartitionCount

	cacheLineLength int32 = 64
)

// Metadata section layout. Fields mutated cross-process sit on their own
// cache line.
//
//	0    tail counter 0                int64
//	64   tail counter 1                int64
//	128  tail counter 2                int64
//	192  active partition index        int32
//	256  time of last status message   int64
//	320  is-connected flag             int32
//	384  correlation id                int64
//	392  initial term id               int32
//	396  default frame header length   int32
//	400  mtu length                    int32
//	404  term length                   int32
//	448  default frame header template (48 bytes)
//	512  end of section
const (
	termTailCounterOffset         int32 = 0
	activePartitionIndexOffset    int32 = cacheLineLength * 3
	timeOfLastStatusMessageOffset int32 = cacheLineLength * 4
	isConnectedOffset             int32 = cacheLineLength * 5
	correlationIDOffset           int32 = cacheLineLength * 6
	initialTermIDOffset           int32 = correlationIDOffset + 8
	defaultFrameHeaderLenOffset   int32 = initialTermIDOffset + 4
	mtuLengthOffset               int32 = defaultFrameHeaderLenOffset + 4
	termLengthFieldOffset         int32 = mtuLengthOffset + 4
	defaultFrameHeaderOffset      int32 = cacheLineLength * 7

	// DefaultFrameHeaderMaxLength is the capacity reserved for the
	// driver-supplied header template.
	DefaultFrameHeaderMaxLength int32 = 48

	// LogMetaDataLength is the total metadata section size.
	LogMetaDataLength int32 = cacheLineLength * 8
)

// MetaData is a view over the shared metadata section of a log.
type MetaData struct {
	buf *atomicbuf.Buffer
}

// WrapMetaData wraps the metadata section buffer.
func WrapMetaData(buf *atomicbuf.Buffer) *MetaData {
	if buf.Capacity() < LogMetaDataLength {
		panic(fmt.Sprintf("logbuffer: metadata buffer too small: %d < %d", buf.Capacity(), LogMetaDataLength))
	}
	return &MetaData{buf: buf}
}

func tailCounterOffset(partition int) int32 {
	return termTailCounterOffset + int32(partition)*cacheLineLength
}

// RawTailVolatile reads the packed tail counter of a partition with acquire
// semantics. High 32 bits term id, low 32 bits raw tail offset.
func (m *MetaData) RawTailVolatile(partition int) int64 {
	return m.buf.GetInt64Volatile(tailCounterOffset(partition))
}

// SetRawTail writes a partition's tail counter without ordering. Used only at
// log initialisation before the buffer is shared.
func (m *MetaData) SetRawTail(partition int, rawTail int64) {
	m.buf.PutInt64(tailCounterOffset(partition), rawTail)
}

// GetAndAddRawTail reserves space by adding alignedLength to a partition's
// tail counter, returning the prior packed value.
func (m *MetaData) GetAndAddRawTail(partition int, alignedLength int64) int64 {
	return m.buf.GetAndAddInt64(tailCounterOffset(partition), alignedLength)
}

// CasRawTail swaps a partition's tail counter from expected to updated.
func (m *MetaData) CasRawTail(partition int, expected, updated int64) bool {
	return m.buf.CompareAndSetInt64(tailCounterOffset(partition), expected, updated)
}

// ActivePartitionIndex reads the active partition index with acquire
// semantics.
func (m *MetaData) ActivePartitionIndex() int32 {
	return m.buf.GetInt32Volatile(activePartitionIndexOffset)
}

// SetActivePartitionIndexOrdered publishes a new active partition index.
func (m *MetaData) SetActivePartitionIndexOrdered(index int32) {
	m.buf.PutInt32Ordered(activePartitionIndexOffset, index)
}

// TimeOfLastStatusMessage reads the driver's last status-message timestamp in
// epoch milliseconds.
func (m *MetaData) TimeOfLastStatusMessage() int64 {
	return m.buf.GetInt64Volatile(timeOfLastStatusMessageOffset)
}

// SetTimeOfLastStatusMessageOrdered stamps the status-message timestamp.
func (m *MetaData) SetTimeOfLastStatusMessageOrdered(ms int64) {
	m.buf.PutInt64Ordered(timeOfLastStatusMessageOffset, ms)
}

// IsConnected reports the driver's connected flag.
func (m *MetaData) IsConnected() bool {
	return m.buf.GetInt32Volatile(isConnectedOffset) == 1
}

// SetIsConnectedOrdered publishes the driver's connected flag.
func (m *MetaData) SetIsConnectedOrdered(connected bool) {
	v := int32(0)
	if connected {
		v = 1
	}
	m.buf.PutInt32Ordered(isConnectedOffset, v)
}

// CorrelationID returns the registration correlation id of the log.
func (m *MetaData) CorrelationID() int64 { return m.buf.GetInt64(correlationIDOffset) }

// SetCorrelationID records the registration correlation id.
func (m *MetaData) SetCorrelationID(id int64) { m.buf.PutInt64(correlationIDOffset, id) }

// InitialTermID returns the term id the stream position is anchored to.
func (m *MetaData) InitialTermID() int32 { return m.buf.GetInt32(initialTermIDOffset) }

// SetInitialTermID records the initial term id.
func (m *MetaData) SetInitialTermID(termID int32) { m.buf.PutInt32(initialTermIDOffset, termID) }

// MTULength returns the maximum transmission unit for the stream.
func (m *MetaData) MTULength() int32 { return m.buf.GetInt32(mtuLengthOffset) }

// SetMTULength records the maximum transmission unit.
func (m *MetaData) SetMTULength(mtu int32) { m.buf.PutInt32(mtuLengthOffset, mtu) }

// TermLength returns the per-partition term length recorded in metadata.
func (m *MetaData) TermLength() int32 { return m.buf.GetInt32(termLengthFieldOffset) }

// SetTermLength records the per-partition term length.
func (m *MetaData) SetTermLength(termLength int32) { m.buf.PutInt32(termLengthFieldOffset, termLength) }

// DefaultFrameHeader returns a view over the header template region.
func (m *MetaData) DefaultFrameHeader() *atomicbuf.Buffer {
	length := m.buf.GetInt32(defaultFrameHeaderLenOffset)
	if length <= 0 || length > DefaultFrameHeaderMaxLength {
		length = HeaderLength
	}
	return m.buf.Slice(defaultFrameHeaderOffset, length)
}

// SetDefaultFrameHeader stores the driver-supplied header template.
func (m *MetaData) SetDefaultFrameHeader(header []byte) {
	if int32(len(header)) > DefaultFrameHeaderMaxLength {
		panic(fmt.Sprintf("logbuffer: header template %d exceeds max %d", len(header), DefaultFrameHeaderMaxLength))
	}
	m.buf.PutInt32(defaultFrameHeaderLenOffset, int32(len(header)))
	m.buf.PutBytes(defaultFrameHeaderOffset, header)
}

// CheckTermLength validates a term length: power of two within bounds.
func CheckTermLength(termLength int32) error {
	if termLength < TermMinLength || termLength > TermMaxLength {
		return fmt.Errorf("logbuffer: term length %d outside [%d, %d]", termLength, TermMinLength, TermMaxLength)
	}
	if termLength&(termLength-1) != 0 {
		return fmt.Errorf("logbuffer: term length %d not a power of two", termLength)
	}
	return nil
}

// PositionBitsToShift returns log2(termLength).
func PositionBitsToShift(termLength int32) uint8 {
	return uint8(bits.TrailingZeros32(uint32(termLength)))
}

// ComputePosition converts (termID, termOffset) to a stream position.
func ComputePosition(termID, termOffset int32, positionBitsToShift uint8, initialTermID int32) int64 {
	return ComputeTermBeginPosition(termID, positionBitsToShift, initialTermID) + int64(termOffset)
}

// ComputeTermBeginPosition returns the stream position at which a term starts.
func ComputeTermBeginPosition(termID int32, positionBitsToShift uint8, initialTermID int32) int64 {
	termCount := int64(termID) - int64(initialTermID)
	return termCount << positionBitsToShift
}

// ComputeTermIDFromPosition is the inverse of ComputePosition for the term id.
func ComputeTermIDFromPosition(position int64, positionBitsToShift uint8, initialTermID int32) int32 {
	return int32(position>>positionBitsToShift) + initialTermID
}

// ComputeTermOffsetFromPosition is the inverse of ComputePosition for the
// offset within the term.
func ComputeTermOffsetFromPosition(position int64, positionBitsToShift uint8) int32 {
	mask := (int64(1) << positionBitsToShift) - 1
	return int32(position & mask)
}

// ComputeMaxPossiblePosition returns the highest position a stream over terms
// of the given length can express.
func ComputeMaxPossiblePosition(termLength int32) int64 {
	return int64(termLength) << 31
}

// IndexByTerm maps a term id to its partition index.
func IndexByTerm(initialTermID, termID int32) int {
	return int((uint32(termID - initialTermID)) % PartitionCount)
}

// NextPartitionIndex returns the partition written after current.
func NextPartitionIndex(current int) int {
	return (current + 1) % PartitionCount
}

// TailTermID unpacks the term id from a raw tail counter value.
func TailTermID(rawTail int64) int32 {
	return int32(rawTail >> 32)
}

// TailTermOffset unpacks the tail offset, clamped to termLength once the term
// has been filled past its end.
func TailTermOffset(rawTail int64, termLength int32) int32 {
	tail := rawTail & 0xFFFFFFFF
	if tail > int64(termLength) {
		tail = int64(termLength)
	}
	return int32(tail)
}

// ComputeLogLength returns the total file length for a log with the given
// term length.
func ComputeLogLength(termLength int32) int64 {
	return int64(termLength)*PartitionCount + int64(LogMetaDataLength)
}

// ComputeTermLength derives the term length from a total log file length.
func ComputeTermLength(logLength int64) int32 {
	return int32((logLength - int64(LogMetaDataLength)) / PartitionCount)
}
