package logbuffer

import "github.com/rzbill/strand/internal/atomicbuf"

// Frame is a decoded view of one frame read from a term buffer. Payload is a
// copy; the term buffer may keep moving underneath the scan.
type Frame struct {
	Offset        int32
	FrameLength   int32
	Version       uint8
	Flags         uint8
	Type          uint16
	TermOffset    int32
	SessionID     int32
	StreamID      int32
	TermID        int32
	ReservedValue int64
	Payload       []byte
}

// IsPadding reports whether the frame is a pad to the term end or an aborted
// claim.
func (f Frame) IsPadding() bool { return f.Type == TypePad }

// AlignedLength returns the bytes the frame occupies in the term.
func (f Frame) AlignedLength() int32 { return Align(f.FrameLength, FrameAlignment) }

// ScanTerm reads frames from the start of a term until the first unpublished
// slot (frame length zero) or the term end. Pad frames are included so
// callers can account for skipped regions. Frame lengths are read with
// acquire semantics, so a frame returned here is fully visible.
func ScanTerm(term *atomicbuf.Buffer, limit int) []Frame {
	var frames []Frame
	termLength := term.Capacity()
	offset := int32(0)

	for offset < termLength {
		frameLength := FrameLengthVolatile(term, offset)
		if frameLength <= 0 {
			break
		}
		f := Frame{
			Offset:        offset,
			FrameLength:   frameLength,
			Version:       term.GetUint8(offset + versionFieldOffset),
			Flags:         term.GetUint8(offset + flagsFieldOffset),
			Type:          term.GetUint16(offset + typeFieldOffset),
			TermOffset:    term.GetInt32(offset + termOffsetFieldOffset),
			SessionID:     term.GetInt32(offset + sessionIDFieldOffset),
			StreamID:      term.GetInt32(offset + streamIDFieldOffset),
			TermID:        term.GetInt32(offset + termIDFieldOffset),
			ReservedValue: term.GetInt64(offset + reservedValueFieldOffset),
		}
		if payloadLength := frameLength - HeaderLength; payloadLength > 0 {
			f.Payload = term.GetBytes(offset+HeaderLength, payloadLength)
		}
		frames = append(frames, f)
		if limit > 0 && len(frames) >= limit {
			break
		}
		offset += f.AlignedLength()
	}
	return frames
}
