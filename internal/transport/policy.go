package transport

import "fmt"

// DefaultDepth is the high-water-mark applied when a policy names neither
// a depth nor conflation.
const DefaultDepth = 1000

// Policy selects how a socket queues frames it cannot hand off yet.
// Depth and Conflate are mutually exclusive.
type Policy struct {
	// Depth bounds the queue; frames beyond it are dropped. Zero means
	// DefaultDepth.
	Depth int `yaml:"depth" json:"depth"`
	// Conflate keeps only the most recent frame, discarding any unread
	// predecessor.
	Conflate bool `yaml:"conflate" json:"conflate"`
}

// Bounded returns a policy that queues up to depth frames.
func Bounded(depth int) Policy {
	return Policy{Depth: depth}
}

// Conflate returns a policy that keeps only the newest frame.
func Conflate() Policy {
	return Policy{Conflate: true}
}

// Validate reports a configuration error for contradictory or negative
// settings.
func (p Policy) Validate() error {
	if p.Depth < 0 {
		return fmt.Errorf("%w: depth %d is negative", ErrInvalidPolicy, p.Depth)
	}
	if p.Depth > 0 && p.Conflate {
		return ErrConflictingPolicy
	}
	return nil
}

// capacity is the number of frames a queue built from p holds.
func (p Policy) capacity() int {
	switch {
	case p.Conflate:
		return 1
	case p.Depth > 0:
		return p.Depth
	default:
		return DefaultDepth
	}
}

// String returns a short description for logs.
func (p Policy) String() string {
	if p.Conflate {
		return "conflate"
	}
	return fmt.Sprintf("hwm=%d", p.capacity())
}
