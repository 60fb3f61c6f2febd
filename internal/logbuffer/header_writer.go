package logbuffer

import "github.com/rzbill/strand/internal/atomicbuf"

// HeaderWriter stamps frame headers from the driver-supplied default header
// template. The template carries version, default flags, type, session id and
// stream id; term-offset and term-id are overwritten per frame. Frame-length
// and reserved-value are written by the appender or the claim holder.
type HeaderWriter struct {
	template [HeaderLength]byte
}

// NewHeaderWriter caches the first HeaderLength bytes of the default header
// template.
func NewHeaderWriter(defaultHeader *atomicbuf.Buffer) *HeaderWriter {
	hw := &HeaderWriter{}
	n := defaultHeader.Capacity()
	if n > HeaderLength {
		n = HeaderLength
	}
	copy(hw.template[:], defaultHeader.Bytes()[:n])
	// The length field must stay zero until the frame is published.
	hw.template[0], hw.template[1], hw.template[2], hw.template[3] = 0, 0, 0, 0
	return hw
}

// Write stamps the header for a frame at offset in term.
func (hw *HeaderWriter) Write(term *atomicbuf.Buffer, offset, termID int32) {
	term.PutBytes(offset, hw.template[:])
	term.PutInt32(offset+termOffsetFieldOffset, offset)
	term.PutInt32(offset+termIDFieldOffset, termID)
}

// DefaultHeaderTemplate builds a header template for a session/stream pair,
// as the driver prepares it at log initialisation.
func DefaultHeaderTemplate(sessionID, streamID int32) []byte {
	buf := atomicbuf.Wrap(make([]byte, HeaderLength))
	buf.PutUint8(versionFieldOffset, CurrentVersion)
	buf.PutUint8(flagsFieldOffset, FlagsUnfragmented)
	buf.PutUint16(typeFieldOffset, TypeData)
	buf.PutInt32(sessionIDFieldOffset, sessionID)
	buf.PutInt32(streamIDFieldOffset, streamID)
	return buf.Bytes()
}
