package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryRejectsInvalidPolicy(t *testing.T) {
	f := newTestFactory(t)

	_, err := f.NewPublisher("inproc://bad", Policy{Depth: 3, Conflate: true})
	assert.ErrorIs(t, err, ErrConflictingPolicy)

	_, err = f.NewSubscriber("inproc://bad", "", Policy{Depth: -2})
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	assert.Equal(t, 0, f.Open())
}

func TestFactoryRejectsInvalidAddress(t *testing.T) {
	f := newTestFactory(t)

	_, err := f.NewPublisher("tcp://localhost:1", Policy{})
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = f.NewSubscriber("nowhere", "", Policy{})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestFactoryCloseClosesSockets(t *testing.T) {
	f := NewFactory(WithReconnectInterval(10 * time.Millisecond))

	pub, err := f.NewPublisher(ipcAddr(t, "owned"), Policy{})
	require.NoError(t, err)
	sub, err := f.NewSubscriber("inproc://owned", "", Policy{})
	require.NoError(t, err)
	assert.Equal(t, 2, f.Open())

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	assert.Equal(t, 0, f.Open())

	_, err = sub.Poll(time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, pub.Send([]byte("x")), ErrClosed)

	_, err = f.NewPublisher("inproc://again", Policy{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFactoryForgetsClosedSockets(t *testing.T) {
	f := newTestFactory(t)

	sub, err := f.NewSubscriber("inproc://forget", "", Policy{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.Open())

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, f.Open())
}
