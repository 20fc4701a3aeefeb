package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	frame := Seal("world", []byte("payload"))

	topic, ok := PeekTopic(frame)
	require.True(t, ok)
	assert.Equal(t, "world", topic)

	payload, err := Open("world", frame)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), payload)
}

func TestOpenEmptyPayload(t *testing.T) {
	payload, err := Open("logs", Seal("logs", nil))
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestOpenPrefixTopicsDoNotCollide(t *testing.T) {
	// "world" is a byte-prefix of "world_state"; a bare strip of
	// len(topic) bytes would hand the tail of the tag to the codec.
	frame := Seal("world_state", []byte("{}"))

	_, err := Open("world", frame)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTopicMismatch)
}

func TestOpenMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"length past end", []byte{0x10, 'a', 'b'}},
		{"unterminated varint", []byte{0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open("ab", tt.frame)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedEnvelope)

			_, ok := PeekTopic(tt.frame)
			assert.False(t, ok)
		})
	}
}

func TestDecodeTruncatedFrame(t *testing.T) {
	frame, err := Encode(JSON, "telemetry", metrics{Value: 3.14})
	require.NoError(t, err)

	for cut := 0; cut < len(frame); cut++ {
		var out metrics
		err := Decode(JSON, "telemetry", frame[:cut], &out)
		assert.Error(t, err, "cut at %d", cut)
	}
}
