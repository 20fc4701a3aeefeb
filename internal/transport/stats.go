package transport

import (
	"fmt"
	"sync/atomic"
)

// Stats is a point-in-time snapshot of a socket's counters.
type Stats struct {
	Addr     string `json:"addr"`
	Peers    int    `json:"peers"`
	Sent     uint64 `json:"sent"`
	Received uint64 `json:"received"`
	Dropped  uint64 `json:"dropped"`
	Queued   int    `json:"queued"`
}

// String returns a string representation of the stats
func (s Stats) String() string {
	return fmt.Sprintf("Stats{Addr: %s, Peers: %d, Sent: %d, Received: %d, Dropped: %d, Queued: %d}",
		s.Addr, s.Peers, s.Sent, s.Received, s.Dropped, s.Queued)
}

type counters struct {
	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

func (c *counters) snapshot(addr string) Stats {
	return Stats{
		Addr:     addr,
		Sent:     c.sent.Load(),
		Received: c.received.Load(),
		Dropped:  c.dropped.Load(),
	}
}
