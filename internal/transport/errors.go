package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPolicy is returned for a queue policy that cannot be applied.
	ErrInvalidPolicy = errors.New("invalid queue policy")
	// ErrConflictingPolicy is returned when both a bounded depth and
	// conflation are requested.
	ErrConflictingPolicy = fmt.Errorf("%w: conflate and a bounded depth are mutually exclusive", ErrInvalidPolicy)
	// ErrInvalidAddress is returned for addresses with an unknown scheme or
	// an unusable target.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrAddressInUse is returned when another live publisher is bound to
	// the address.
	ErrAddressInUse = errors.New("address already in use")

	// ErrQueueFull is returned by Send when a peer's send queue is at its
	// high-water-mark. The frame was dropped for that peer.
	ErrQueueFull = errors.New("send queue full")
	// ErrTimeout is returned by Poll when no frame arrived in time.
	ErrTimeout = errors.New("poll timeout")
	// ErrClosed is returned once a socket or factory has been closed.
	ErrClosed = errors.New("socket closed")
)

// IsConfigurationError reports whether err was caused by an invalid policy
// or address, as opposed to a runtime transport failure.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrAddressInUse)
}
