package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/underbots/ipcbus/internal/wire"
)

type pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta,omitempty"`
	note  string
	Skip  string `json:"-"`
	Frame string
}

func TestTopicFields(t *testing.T) {
	topic := NewTopic[pose]("pose", "Robot pose")

	assert.Equal(t, "pose", topic.Name())
	assert.Equal(t, "Robot pose", topic.Description())
	assert.Equal(t, []string{"x", "y", "theta", "Frame"}, topic.Fields())
	assert.Nil(t, NewTopic[int]("count", "").Fields())
	assert.Equal(t, []string{"x", "y", "theta", "Frame"}, NewTopic[*pose]("pose_ptr", "").Fields())
}

func TestTopicPublishSubscribe(t *testing.T) {
	b := newTestBus(t)
	topic := NewTopic[pose]("typed_pose", "Robot pose")

	got := make(chan pose, 1)
	require.NoError(t, topic.Subscribe(b, func(p pose) { got <- p }))
	require.NoError(t, b.Start())
	require.NoError(t, topic.Publish(b, pose{X: 1, Y: 2, Theta: 0.5}))

	select {
	case p := <-got:
		assert.Equal(t, pose{X: 1, Y: 2, Theta: 0.5}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("typed message not delivered")
	}
}

func TestDecodeAllocatesFreshValues(t *testing.T) {
	frame, err := wire.Encode(wire.JSON, "fresh", pose{X: 1})
	require.NoError(t, err)

	first, err := decode[*pose](wire.JSON, "fresh", frame)
	require.NoError(t, err)
	second, err := decode[*pose](wire.JSON, "fresh", frame)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)

	_, err = decode[pose](wire.JSON, "other", frame)
	var decodeErr *wire.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestProtoCodecRoundTrip(t *testing.T) {
	b := newTestBus(t, WithCodec(wire.Proto))

	got := make(chan *wrapperspb.DoubleValue, 1)
	require.NoError(t, RegisterCallback(b, "proto_metrics", func(v *wrapperspb.DoubleValue) { got <- v }))
	require.NoError(t, b.Start())
	require.NoError(t, b.Publish("proto_metrics", wrapperspb.Double(3.14)))

	select {
	case v := <-got:
		assert.Equal(t, 3.14, v.GetValue())
	case <-time.After(2 * time.Second):
		t.Fatal("proto message not delivered")
	}

	// a value that is not a proto message cannot be encoded
	err := b.Publish("proto_metrics", Metrics{Value: 1})
	assert.Error(t, err)
	assert.False(t, IsConfigurationError(err))
}
