package client

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rzbill/strand/internal/counters"
	"github.com/rzbill/strand/internal/logbuffer"
	logpkg "github.com/rzbill/strand/pkg/log"
)

// Publication is a publisher's handle on one stream within a channel. It
// appends frames to the shared log mapped from the driver. All methods are
// safe for concurrent use; the append path is lock-free.
type Publication struct {
	registrationID int64
	channel        string
	streamID       int32
	sessionID      int32

	lb           *logbuffer.LogBuffers
	meta         *logbuffer.MetaData
	appenders    [logbuffer.PartitionCount]*logbuffer.Appender
	headerWriter *logbuffer.HeaderWriter

	termLength          int32
	initialTermID       int32
	positionBitsToShift uint8
	maxPossiblePosition int64
	maxPayloadLength    int32
	maxMessageLength    int32

	limit     *counters.Position
	connected func(timeOfLastSMms int64) bool
	releaseCh chan<- releaseRequest
	driver    DriverProxy

	closed atomic.Bool

	// Debug claim registry, active only with Options.DebugClaims.
	debugClaims bool
	claimMu     sync.Mutex
	outstanding map[*logbuffer.Claim]struct{}
	log         logpkg.Logger
}

type publicationConfig struct {
	registrationID int64
	channel        string
	streamID       int32
	sessionID      int32
	lb             *logbuffer.LogBuffers
	limit          *counters.Position
	connected      func(int64) bool
	releaseCh      chan<- releaseRequest
	driver         DriverProxy
	debugClaims    bool
	log            logpkg.Logger
}

func newPublication(cfg publicationConfig) *Publication {
	meta := cfg.lb.Meta()
	termLength := cfg.lb.TermLength()

	p := &Publication{
		registrationID:      cfg.registrationID,
		channel:             cfg.channel,
		streamID:            cfg.streamID,
		sessionID:           cfg.sessionID,
		lb:                  cfg.lb,
		meta:                meta,
		headerWriter:        logbuffer.NewHeaderWriter(meta.DefaultFrameHeader()),
		termLength:          termLength,
		initialTermID:       meta.InitialTermID(),
		positionBitsToShift: logbuffer.PositionBitsToShift(termLength),
		maxPossiblePosition: logbuffer.ComputeMaxPossiblePosition(termLength),
		maxPayloadLength:    meta.MTULength() - logbuffer.HeaderLength,
		maxMessageLength:    logbuffer.ComputeMaxMessageLength(termLength),
		limit:               cfg.limit,
		connected:           cfg.connected,
		releaseCh:           cfg.releaseCh,
		driver:              cfg.driver,
		debugClaims:         cfg.debugClaims,
		log:                 cfg.log,
	}
	if p.debugClaims {
		p.outstanding = make(map[*logbuffer.Claim]struct{})
	}
	for i := 0; i < logbuffer.PartitionCount; i++ {
		p.appenders[i] = logbuffer.NewAppender(cfg.lb, i)
	}
	return p
}

// Channel returns the channel URI the publication was added with.
func (p *Publication) Channel() string { return p.channel }

// StreamID returns the stream identity within the channel.
func (p *Publication) StreamID() int32 { return p.streamID }

// SessionID returns the publisher session identity stamped into every frame.
func (p *Publication) SessionID() int32 { return p.sessionID }

// RegistrationID returns the driver registration id of this publication.
func (p *Publication) RegistrationID() int64 { return p.registrationID }

// InitialTermID returns the term id the stream position is anchored to.
func (p *Publication) InitialTermID() int32 { return p.initialTermID }

// TermBufferLength returns the per-partition term length.
func (p *Publication) TermBufferLength() int32 { return p.termLength }

// MaxMessageLength returns the largest message Offer accepts.
func (p *Publication) MaxMessageLength() int32 { return p.maxMessageLength }

// MaxPayloadLength returns the largest single-frame payload, and the TryClaim
// limit.
func (p *Publication) MaxPayloadLength() int32 { return p.maxPayloadLength }

// PublicationLimit returns the current driver-maintained limit position.
func (p *Publication) PublicationLimit() int64 { return p.limit.GetVolatile() }

// IsConnected reports whether the driver has seen a subscriber status message
// within the liveness window.
func (p *Publication) IsConnected() bool {
	return !p.closed.Load() && p.connected(p.meta.TimeOfLastStatusMessage())
}

// IsClosed reports whether the publication has been closed.
func (p *Publication) IsClosed() bool { return p.closed.Load() }

// Position returns the current producer position of the stream, or
// PublicationClosed.
func (p *Publication) Position() int64 {
	if p.closed.Load() {
		return PublicationClosed
	}
	index := int(p.meta.ActivePartitionIndex())
	rawTail := p.appenders[index].RawTailVolatile()
	termOffset := logbuffer.TailTermOffset(rawTail, p.termLength)
	termID := logbuffer.TailTermID(rawTail)
	return logbuffer.ComputeTermBeginPosition(termID, p.positionBitsToShift, p.initialTermID) + int64(termOffset)
}

// Offer copies data into the stream as one frame, or a fragment chain when it
// exceeds the max payload length. Returns the new stream position, or a
// negative sentinel. A nil supplier leaves the reserved value zero.
func (p *Publication) Offer(data []byte, supplier logbuffer.ReservedValueSupplier) (int64, error) {
	length := int32(len(data))
	if length > p.maxMessageLength {
		return 0, fmt.Errorf("%w: %d > %d", ErrMessageTooLong, length, p.maxMessageLength)
	}
	if p.closed.Load() {
		return PublicationClosed, nil
	}

	limit := p.limit.GetVolatile()
	index := int(p.meta.ActivePartitionIndex())
	appender := p.appenders[index]
	rawTail := appender.RawTailVolatile()
	termOffset := logbuffer.TailTermOffset(rawTail, p.termLength)
	termID := logbuffer.TailTermID(rawTail)
	position := logbuffer.ComputeTermBeginPosition(termID, p.positionBitsToShift, p.initialTermID) + int64(termOffset)

	if position >= p.maxPossiblePosition {
		return MaxPositionExceeded, nil
	}
	if position >= limit {
		return p.backPressureStatus(), nil
	}

	var resultingOffset, appendTermID int32
	if length <= p.maxPayloadLength {
		resultingOffset, appendTermID = appender.AppendUnfragmented(p.headerWriter, data, supplier)
	} else {
		resultingOffset, appendTermID = appender.AppendFragmented(p.headerWriter, data, p.maxPayloadLength, supplier)
	}
	return p.newPosition(index, termOffset, position, resultingOffset, appendTermID), nil
}

// TryClaim reserves a frame for zero-copy writing and binds claim to it. The
// frame stays invisible to subscribers until claim.Commit or claim.Abort.
// Returns the position the frame will occupy once committed, or a negative
// sentinel. length must not exceed MaxPayloadLength.
func (p *Publication) TryClaim(length int32, claim *logbuffer.Claim) (int64, error) {
	if length < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeLength, length)
	}
	if length > p.maxPayloadLength {
		return 0, fmt.Errorf("%w: %d > %d", ErrClaimTooLong, length, p.maxPayloadLength)
	}
	if p.closed.Load() {
		return PublicationClosed, nil
	}

	limit := p.limit.GetVolatile()
	index := int(p.meta.ActivePartitionIndex())
	appender := p.appenders[index]
	rawTail := appender.RawTailVolatile()
	termOffset := logbuffer.TailTermOffset(rawTail, p.termLength)
	termID := logbuffer.TailTermID(rawTail)
	position := logbuffer.ComputeTermBeginPosition(termID, p.positionBitsToShift, p.initialTermID) + int64(termOffset)

	if position >= p.maxPossiblePosition {
		return MaxPositionExceeded, nil
	}
	if position >= limit {
		return p.backPressureStatus(), nil
	}

	resultingOffset, appendTermID := appender.Claim(p.headerWriter, length, claim)
	newPosition := p.newPosition(index, termOffset, position, resultingOffset, appendTermID)
	if newPosition >= 0 && p.debugClaims {
		p.registerClaim(claim)
	}
	return newPosition, nil
}

// AddDestination adds a destination endpoint for a multi-destination channel.
func (p *Publication) AddDestination(endpoint string) error {
	if p.closed.Load() {
		return fmt.Errorf("client: publication %d closed", p.registrationID)
	}
	return p.driver.AddDestination(p.registrationID, endpoint)
}

// RemoveDestination removes a previously added destination endpoint.
func (p *Publication) RemoveDestination(endpoint string) error {
	if p.closed.Load() {
		return fmt.Errorf("client: publication %d closed", p.registrationID)
	}
	return p.driver.RemoveDestination(p.registrationID, endpoint)
}

// Close marks the publication closed and posts its release to the conductor.
// With DebugClaims enabled, any outstanding unreleased claims are aborted so
// subscribers do not stall on the orphaned slots.
func (p *Publication) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.abortOutstandingClaims()

	req := releaseRequest{registrationID: p.registrationID}
	select {
	case p.releaseCh <- req:
	default:
		// Queue full or conductor gone: release inline.
		return p.driver.ReleasePublication(p.registrationID)
	}
	return nil
}

func (p *Publication) newPosition(index int, termOffset int32, position int64, resultingOffset, termID int32) int64 {
	switch resultingOffset {
	case logbuffer.AppendTripped:
		p.rotateTerm(index, termID)
		return AdminAction
	case logbuffer.AppendFailed:
		p.rotateTerm(index, termID)
		return AdminAction
	default:
		return position - int64(termOffset) + int64(resultingOffset)
	}
}

// rotateTerm transitions the log to the next term after this publisher
// tripped the current one or found it already full. Losing the CAS is benign:
// the winner has already seeded the tail and the index store is idempotent.
func (p *Publication) rotateTerm(currentIndex int, currentTermID int32) {
	nextIndex := logbuffer.NextPartitionIndex(currentIndex)
	nextTermID := currentTermID + 1
	tail := p.meta.RawTailVolatile(nextIndex)
	if logbuffer.TailTermID(tail) != nextTermID {
		p.meta.CasRawTail(nextIndex, tail, int64(nextTermID)<<32)
	}
	p.meta.SetActivePartitionIndexOrdered(int32(nextIndex))
}

func (p *Publication) backPressureStatus() int64 {
	if p.connected(p.meta.TimeOfLastStatusMessage()) {
		return BackPressured
	}
	return NotConnected
}

func (p *Publication) registerClaim(claim *logbuffer.Claim) {
	p.claimMu.Lock()
	defer p.claimMu.Unlock()
	for c := range p.outstanding {
		if c.Released() {
			delete(p.outstanding, c)
		}
	}
	p.outstanding[claim] = struct{}{}
}

func (p *Publication) abortOutstandingClaims() {
	if !p.debugClaims {
		return
	}
	p.claimMu.Lock()
	defer p.claimMu.Unlock()
	for c := range p.outstanding {
		if !c.Released() {
			if err := c.Abort(); err == nil && p.log != nil {
				p.log.Warn("aborted claim outstanding at close",
					logpkg.Int64("registrationID", p.registrationID),
					logpkg.Int32("streamID", p.streamID))
			}
		}
		delete(p.outstanding, c)
	}
}
