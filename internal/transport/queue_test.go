package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueBoundedDropsNewest(t *testing.T) {
	q := newQueue(Bounded(2))

	assert.Equal(t, offerQueued, q.offer([]byte("a")))
	assert.Equal(t, offerQueued, q.offer([]byte("b")))
	assert.Equal(t, offerDropped, q.offer([]byte("c")), "third frame should be dropped")
	assert.Equal(t, 2, q.len())

	for _, want := range []string{"a", "b"} {
		got, err := q.take(time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestQueueConflateKeepsLatest(t *testing.T) {
	q := newQueue(Conflate())

	assert.Equal(t, offerQueued, q.offer([]byte("1")))
	assert.Equal(t, offerReplaced, q.offer([]byte("2")))
	assert.Equal(t, offerReplaced, q.offer([]byte("3")))
	assert.Equal(t, 1, q.len())

	got, err := q.take(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "3", string(got))

	_, err = q.take(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestQueueTakeWaitsForOffer(t *testing.T) {
	q := newQueue(Policy{})

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.offer([]byte("late"))
	}()

	got, err := q.take(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", string(got))
}

func TestQueueCloseWakesWaiter(t *testing.T) {
	q := newQueue(Policy{})
	q.offer([]byte("pending"))

	errCh := make(chan error, 1)
	go func() {
		// drain the pending frame, then block
		_, _ = q.take(0)
		_, err := q.take(0)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.close()
	q.close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("take did not return after close")
	}

	assert.Equal(t, offerDropped, q.offer([]byte("after")))
	assert.Equal(t, 0, q.len())
}

func TestOfferResultLost(t *testing.T) {
	assert.Zero(t, offerQueued.lost())
	assert.Equal(t, uint64(1), offerReplaced.lost())
	assert.Equal(t, uint64(1), offerDropped.lost())
	assert.True(t, offerReplaced.accepted())
	assert.False(t, offerDropped.accepted())
}
