package transport

import (
	"sync"
	"time"
)

// queue is a single-consumer frame queue that applies a Policy on offer.
// Bounded queues drop the incoming frame when full; conflating queues
// replace the unread frame.
type queue struct {
	mu       sync.Mutex
	items    [][]byte
	capacity int
	conflate bool
	closed   bool

	ready chan struct{}
	done  chan struct{}
}

func newQueue(p Policy) *queue {
	return &queue{
		capacity: p.capacity(),
		conflate: p.Conflate,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// offerResult reports what offer did with a frame.
type offerResult int

const (
	offerQueued offerResult = iota
	// offerReplaced means the frame was queued in place of an unread one.
	offerReplaced
	// offerDropped means the queue was full or closed.
	offerDropped
)

func (r offerResult) accepted() bool { return r != offerDropped }

// lost returns how many frames the offer cost: the incoming one when it
// was dropped, or the unread one it replaced.
func (r offerResult) lost() uint64 {
	if r == offerQueued {
		return 0
	}
	return 1
}

// offer enqueues frame without blocking.
func (q *queue) offer(frame []byte) offerResult {
	q.mu.Lock()
	res := offerQueued
	switch {
	case q.closed:
		q.mu.Unlock()
		return offerDropped
	case q.conflate:
		if len(q.items) > 0 {
			res = offerReplaced
		}
		q.items = append(q.items[:0], frame)
	case len(q.items) >= q.capacity:
		q.mu.Unlock()
		return offerDropped
	default:
		q.items = append(q.items, frame)
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return res
}

// take removes the oldest frame, waiting up to timeout for one to arrive.
// A non-positive timeout waits until a frame arrives or the queue closes.
func (q *queue) take(timeout time.Duration) ([]byte, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if len(q.items) > 0 {
			frame := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return frame, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-expired:
			return nil, ErrTimeout
		}
	}
}

// len returns the number of frames waiting.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close wakes any waiter and discards queued frames. It is idempotent.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}
