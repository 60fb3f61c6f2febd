package logbuffer

import (
	"errors"

	"github.com/rzbill/strand/internal/atomicbuf"
)

// Structured faults for claim misuse. These indicate programmer errors and
// never overlap with the negative sentinel results.
var (
	ErrClaimUnused   = errors.New("logbuffer: claim has not been populated by a successful tryClaim")
	ErrClaimReleased = errors.New("logbuffer: claim already committed or aborted")
	ErrNotPrivileged = errors.New("logbuffer: header mutation requires a privileged claim")
)

type claimState uint8

const (
	claimUnused claimState = iota
	claimActive
	claimReleased
)

// Claim is a zero-copy reservation over a claimed frame region. It is valid
// from a successful tryClaim until exactly one of Commit or Abort. A standard
// claim may set the reserved value; a privileged claim (NewPrivilegedClaim)
// may additionally rewrite the flags and type header fields.
type Claim struct {
	buf        *atomicbuf.Buffer
	privileged bool
	state      claimState
}

// NewPrivilegedClaim returns a claim whose holder may mutate the flags and
// type header fields before committing.
func NewPrivilegedClaim() *Claim {
	return &Claim{privileged: true}
}

// wrap binds the claim to a frame region. Called by the appender on a
// successful claim; any prior binding is discarded.
func (c *Claim) wrap(term *atomicbuf.Buffer, frameOffset, frameLength int32) {
	c.buf = term.Slice(frameOffset, frameLength)
	c.state = claimActive
}

// Buffer returns the whole claimed frame including its header.
func (c *Claim) Buffer() *atomicbuf.Buffer { return c.buf }

// Offset returns the payload start within Buffer.
func (c *Claim) Offset() int32 { return HeaderLength }

// Length returns the payload length of the claim.
func (c *Claim) Length() int32 {
	if c.buf == nil {
		return 0
	}
	return c.buf.Capacity() - HeaderLength
}

// Data returns the payload region for the caller to fill before Commit.
func (c *Claim) Data() []byte {
	if c.buf == nil {
		return nil
	}
	return c.buf.Bytes()[HeaderLength:]
}

// ReservedValue reads the frame's reserved-value field.
func (c *Claim) ReservedValue() int64 {
	if c.buf == nil {
		return 0
	}
	return c.buf.GetInt64(reservedValueFieldOffset)
}

// SetReservedValue writes the frame's reserved-value field.
func (c *Claim) SetReservedValue(v int64) error {
	if err := c.checkActive(); err != nil {
		return err
	}
	c.buf.PutInt64(reservedValueFieldOffset, v)
	return nil
}

// SetFlags rewrites the frame flags. Privileged claims only.
func (c *Claim) SetFlags(flags uint8) error {
	if err := c.checkActive(); err != nil {
		return err
	}
	if !c.privileged {
		return ErrNotPrivileged
	}
	c.buf.PutUint8(flagsFieldOffset, flags)
	return nil
}

// SetHeaderType rewrites the frame type. Privileged claims only.
func (c *Claim) SetHeaderType(typ uint16) error {
	if err := c.checkActive(); err != nil {
		return err
	}
	if !c.privileged {
		return ErrNotPrivileged
	}
	c.buf.PutUint16(typeFieldOffset, typ)
	return nil
}

// Commit publishes the claimed frame to subscribers. The claim is inert
// afterwards.
func (c *Claim) Commit() error {
	if err := c.checkActive(); err != nil {
		return err
	}
	c.buf.PutInt32Ordered(lengthFieldOffset, c.buf.Capacity())
	c.state = claimReleased
	return nil
}

// Abort rewrites the claimed frame as padding and publishes it so subscribers
// skip the region. The claim is inert afterwards.
func (c *Claim) Abort() error {
	if err := c.checkActive(); err != nil {
		return err
	}
	c.buf.PutUint16(typeFieldOffset, TypePad)
	c.buf.PutInt32Ordered(lengthFieldOffset, c.buf.Capacity())
	c.state = claimReleased
	return nil
}

// Released reports whether the claim has been committed or aborted.
func (c *Claim) Released() bool { return c.state == claimReleased }

func (c *Claim) checkActive() error {
	switch c.state {
	case claimUnused:
		return ErrClaimUnused
	case claimReleased:
		return ErrClaimReleased
	}
	return nil
}
