package logbuffer

import "github.com/rzbill/strand/internal/atomicbuf"

// Data frame header, 32 bytes, little-endian on the wire:
//
//	offset 0  frame-length  int32   written last, release store
//	offset 4  version       uint8
//	offset 5  flags         uint8   B=0x80 begin, E=0x40 end
//	offset 6  type          uint16  0x00 pad, 0x01 data
//	offset 8  term-offset   int32
//	offset 12 session-id    int32
//	offset 16 stream-id     int32
//	offset 20 term-id       int32
//	offset 24 reserved      int64   user-settable
//	offset 32 payload, frame occupies align(frame-length, 32) bytes
const (
	// HeaderLength is the fixed size of a data frame header.
	HeaderLength int32 = 32

	// FrameAlignment is the byte boundary every frame starts and ends on.
	FrameAlignment int32 = 32

	// CurrentVersion is the protocol version stamped into headers.
	CurrentVersion uint8 = 0
)

// Frame types.
const (
	TypePad  uint16 = 0x00
	TypeData uint16 = 0x01
)

// Frame flags.
const (
	FlagBeginFragment uint8 = 0x80
	FlagEndFragment   uint8 = 0x40
	FlagsUnfragmented uint8 = FlagBeginFragment | FlagEndFragment
)

// Header field offsets relative to the frame start.
const (
	lengthFieldOffset        int32 = 0
	versionFieldOffset       int32 = 4
	flagsFieldOffset         int32 = 5
	typeFieldOffset          int32 = 6
	termOffsetFieldOffset    int32 = 8
	sessionIDFieldOffset     int32 = 12
	streamIDFieldOffset      int32 = 16
	termIDFieldOffset        int32 = 20
	reservedValueFieldOffset int32 = 24
)

// Align rounds value up to the next multiple of alignment, which must be a
// power of two.
func Align(value, alignment int32) int32 {
	return (value + alignment - 1) &^ (alignment - 1)
}

// ComputeMaxMessageLength returns the largest message acceptable to offer for
// a term of the given length.
func ComputeMaxMessageLength(termLength int32) int32 {
	return termLength / 8
}

// FrameLengthVolatile reads a frame's length field with acquire semantics.
// Zero means the frame is not yet visible.
func FrameLengthVolatile(buf *atomicbuf.Buffer, frameOffset int32) int32 {
	return buf.GetInt32Volatile(frameOffset + lengthFieldOffset)
}

// frameLengthOrdered publishes a frame by storing its length with release
// semantics.
func frameLengthOrdered(buf *atomicbuf.Buffer, frameOffset, frameLength int32) {
	buf.PutInt32Ordered(frameOffset+lengthFieldOffset, frameLength)
}

func frameType(buf *atomicbuf.Buffer, frameOffset int32, typ uint16) {
	buf.PutUint16(frameOffset+typeFieldOffset, typ)
}

func frameFlags(buf *atomicbuf.Buffer, frameOffset int32, flags uint8) {
	buf.PutUint8(frameOffset+flagsFieldOffset, flags)
}
