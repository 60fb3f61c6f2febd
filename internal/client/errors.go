package client

import "errors"

// Sentinel results returned by Offer, TryClaim and Position. These are
// dynamic states, not errors; the numeric values are part of the external
// contract and branch targets for callers.
const (
	// NotConnected means no subscriber is within the liveness window.
	NotConnected int64 = -1

	// BackPressured means the publication limit has been reached; retry
	// after the driver advances the limit.
	BackPressured int64 = -2

	// AdminAction means an administrative action such as term rotation was
	// taken; retry immediately with identical semantics.
	AdminAction int64 = -3

	// PublicationClosed means the publication has been closed. Terminal.
	PublicationClosed int64 = -4

	// MaxPositionExceeded means the stream position cannot advance further
	// with this term length. Terminal.
	MaxPositionExceeded int64 = -5
)

// ResultDescription names a sentinel result for diagnostics.
func ResultDescription(result int64) string {
	switch result {
	case NotConnected:
		return "not connected"
	case BackPressured:
		return "back pressured"
	case AdminAction:
		return "admin action"
	case PublicationClosed:
		return "publication closed"
	case MaxPositionExceeded:
		return "max position exceeded"
	default:
		return "ok"
	}
}

// Structured faults for precondition violations. The publication remains
// usable after any of these.
var (
	ErrNegativeLength  = errors.New("client: length is negative")
	ErrMessageTooLong  = errors.New("client: message exceeds max message length")
	ErrClaimTooLong    = errors.New("client: claim exceeds max payload length")
	ErrConductorClosed = errors.New("client: conductor closed")
)
