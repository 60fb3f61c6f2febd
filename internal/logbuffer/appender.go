package logbuffer

import "github.com/rzbill/strand/internal/atomicbuf"

// Append results returned in place of a resulting offset.
const (
	// AppendTripped means this producer crossed the term end and stamped the
	// pad; it must rotate and retry.
	AppendTripped int32 = -1

	// AppendFailed means the term was already full when the reservation was
	// made (another producer tripped it, or a frame ended exactly at the term
	// end); the caller rotates and retries.
	AppendFailed int32 = -2
)

// ReservedValueSupplier computes the reserved-value field for a frame, given
// the term buffer, the frame's offset and its unaligned length. It is invoked
// immediately before the frame length is published. A nil supplier leaves the
// field zero.
type ReservedValueSupplier func(term *atomicbuf.Buffer, termOffset, frameLength int32) int64

// Appender reserves and writes frames in a single term partition. The only
// mutable state is the shared tail counter, so any number of goroutines and
// processes may append through distinct Appender values concurrently.
type Appender struct {
	term      *atomicbuf.Buffer
	meta      *MetaData
	partition int
}

// NewAppender returns the appender for one partition of a log.
func NewAppender(lb *LogBuffers, partition int) *Appender {
	return &Appender{term: lb.Term(partition), meta: lb.Meta(), partition: partition}
}

// RawTailVolatile reads the partition's packed tail counter.
func (a *Appender) RawTailVolatile() int64 {
	return a.meta.RawTailVolatile(a.partition)
}

// Claim reserves space for a frame of the given payload length and binds
// claim to it, leaving the frame unpublished until the claim is committed or
// aborted. Returns the resulting term offset (or AppendTripped/AppendFailed)
// and the term id the reservation landed in.
func (a *Appender) Claim(hw *HeaderWriter, length int32, claim *Claim) (int32, int32) {
	frameLength := length + HeaderLength
	alignedLength := Align(frameLength, FrameAlignment)

	rawTail := a.meta.GetAndAddRawTail(a.partition, int64(alignedLength))
	termOffset := rawTail & 0xFFFFFFFF
	termID := TailTermID(rawTail)
	termLength := int64(a.term.Capacity())

	if termOffset+int64(alignedLength) > termLength {
		return a.handleEndOfTerm(hw, termOffset, termID), termID
	}

	offset := int32(termOffset)
	hw.Write(a.term, offset, termID)
	claim.wrap(a.term, offset, frameLength)
	return offset + alignedLength, termID
}

// AppendUnfragmented reserves space, stamps the header, copies the payload
// and publishes the frame.
func (a *Appender) AppendUnfragmented(hw *HeaderWriter, payload []byte, supplier ReservedValueSupplier) (int32, int32) {
	frameLength := int32(len(payload)) + HeaderLength
	alignedLength := Align(frameLength, FrameAlignment)

	rawTail := a.meta.GetAndAddRawTail(a.partition, int64(alignedLength))
	termOffset := rawTail & 0xFFFFFFFF
	termID := TailTermID(rawTail)
	termLength := int64(a.term.Capacity())

	if termOffset+int64(alignedLength) > termLength {
		return a.handleEndOfTerm(hw, termOffset, termID), termID
	}

	offset := int32(termOffset)
	hw.Write(a.term, offset, termID)
	a.term.PutBytes(offset+HeaderLength, payload)
	if supplier != nil {
		a.term.PutInt64(offset+reservedValueFieldOffset, supplier(a.term, offset, frameLength))
	}
	frameLengthOrdered(a.term, offset, frameLength)
	return offset + alignedLength, termID
}

// AppendFragmented reserves one atomic extent for the whole message and
// writes it as a BEGIN / MID* / END chain of frames, each carrying at most
// maxPayloadLength payload bytes.
func (a *Appender) AppendFragmented(hw *HeaderWriter, payload []byte, maxPayloadLength int32, supplier ReservedValueSupplier) (int32, int32) {
	length := int32(len(payload))
	numMaxPayloads := length / maxPayloadLength
	remainingPayload := length % maxPayloadLength
	lastFrameLength := int32(0)
	if remainingPayload > 0 {
		lastFrameLength = Align(remainingPayload+HeaderLength, FrameAlignment)
	}
	requiredLength := numMaxPayloads*(maxPayloadLength+HeaderLength) + lastFrameLength

	rawTail := a.meta.GetAndAddRawTail(a.partition, int64(requiredLength))
	termOffset := rawTail & 0xFFFFFFFF
	termID := TailTermID(rawTail)
	termLength := int64(a.term.Capacity())

	if termOffset+int64(requiredLength) > termLength {
		return a.handleEndOfTerm(hw, termOffset, termID), termID
	}

	flags := FlagBeginFragment
	remaining := length
	offset := int32(termOffset)
	for remaining > 0 {
		bytesToWrite := remaining
		if bytesToWrite > maxPayloadLength {
			bytesToWrite = maxPayloadLength
		}
		frameLength := bytesToWrite + HeaderLength
		alignedLength := Align(frameLength, FrameAlignment)

		hw.Write(a.term, offset, termID)
		a.term.PutBytes(offset+HeaderLength, payload[length-remaining:length-remaining+bytesToWrite])
		if remaining <= maxPayloadLength {
			flags |= FlagEndFragment
		}
		frameFlags(a.term, offset, flags)
		if supplier != nil {
			a.term.PutInt64(offset+reservedValueFieldOffset, supplier(a.term, offset, frameLength))
		}
		frameLengthOrdered(a.term, offset, frameLength)

		flags = 0
		offset += alignedLength
		remaining -= bytesToWrite
	}
	return offset, termID
}

// handleEndOfTerm stamps the pad frame when this producer is the one that
// crossed the term end, per the reservation that tripped.
func (a *Appender) handleEndOfTerm(hw *HeaderWriter, termOffset int64, termID int32) int32 {
	termLength := int64(a.term.Capacity())
	if termOffset < termLength {
		offset := int32(termOffset)
		paddingLength := int32(termLength) - offset
		hw.Write(a.term, offset, termID)
		frameType(a.term, offset, TypePad)
		frameLengthOrdered(a.term, offset, paddingLength)
		return AppendTripped
	}
	return AppendFailed
}
